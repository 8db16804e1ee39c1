package quicksale

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"

	"ktu-bizconnect/internal/models"
	"ktu-bizconnect/internal/saleerrors"
	"ktu-bizconnect/internal/utils"
)

// Validator checks request bodies and strips markup from free-text fields.
type Validator struct {
	validate    *validator.Validate
	policy      *bluemonday.Policy
	maxProducts int
	maxImages   int
}

func NewValidator(maxProducts, maxImagesPerProduct int) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate:    v,
		policy:      bluemonday.StrictPolicy(),
		maxProducts: maxProducts,
		maxImages:   maxImagesPerProduct,
	}
}

// ValidateCreate sanitises req in place and checks it. uploads[i] is the number of image
// files sent alongside product i.
func (v *Validator) ValidateCreate(req *models.CreateQuickSaleRequest, uploads map[int]int, now time.Time) error {
	req.Title = v.clean(req.Title)
	req.Description = v.clean(req.Description)
	req.SellerName = v.clean(req.SellerName)
	req.SellerContact = v.clean(req.SellerContact)
	req.SellerEmail = strings.TrimSpace(req.SellerEmail)
	for i := range req.Products {
		p := &req.Products[i]
		p.Title = v.clean(p.Title)
		p.Description = v.clean(p.Description)
		p.Condition = v.clean(p.Condition)
	}

	if err := v.structErr(req); err != nil {
		return err
	}

	if len(req.Products) > v.maxProducts {
		return saleerrors.Validation("a quick sale may list at most %d products", v.maxProducts)
	}
	for i, p := range req.Products {
		if n := len(p.Images) + uploads[i]; n > v.maxImages {
			return saleerrors.Validation("product %d has %d images, at most %d allowed", i+1, n, v.maxImages)
		}
	}
	for i := range uploads {
		if i < 0 || i >= len(req.Products) {
			return saleerrors.Validation("images_%d does not match any product", i)
		}
	}

	if req.ReservePrice != nil && *req.ReservePrice <= 0 {
		return saleerrors.Validation("reserve_price must be greater than zero")
	}

	startsAt := now
	if req.StartsAt != nil {
		startsAt = utils.NormalizeTime(*req.StartsAt)
	}
	endsAt := utils.NormalizeTime(req.EndsAt)
	if !endsAt.After(startsAt) {
		return saleerrors.Validation("ends_at must be after starts_at")
	}
	if !endsAt.After(now) {
		return saleerrors.Validation("ends_at must be in the future")
	}
	return nil
}

func (v *Validator) ValidateBid(req *models.PlaceBidRequest) error {
	req.BidderName = v.clean(req.BidderName)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	if req.BidAmount < 0 {
		return saleerrors.ErrNonPositive
	}
	return v.structErr(req)
}

func (v *Validator) ValidateUpdate(req *models.UpdateQuickSaleRequest) error {
	if req.Empty() {
		return saleerrors.Validation("no fields to update")
	}
	for _, field := range []*string{req.Title, req.Description, req.SellerName, req.SellerContact} {
		if field != nil {
			*field = v.clean(*field)
		}
	}
	if req.SellerEmail != nil {
		*req.SellerEmail = strings.TrimSpace(*req.SellerEmail)
	}
	if err := v.structErr(req); err != nil {
		return err
	}

	if req.Status != nil && !req.Status.Valid() {
		return saleerrors.Validation("status must be one of active, ended, cancelled")
	}
	if req.ReservePrice != nil && *req.ReservePrice <= 0 {
		return saleerrors.Validation("reserve_price must be greater than zero")
	}
	if req.ReservePrice != nil && req.ClearReserve {
		return saleerrors.Validation("reserve_price and clear_reserve cannot be combined")
	}
	if req.StartsAt != nil {
		t := utils.NormalizeTime(*req.StartsAt)
		req.StartsAt = &t
	}
	if req.EndsAt != nil {
		t := utils.NormalizeTime(*req.EndsAt)
		req.EndsAt = &t
	}
	return nil
}

func (v *Validator) ValidateLogin(req *models.LoginRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	return v.structErr(req)
}

func (v *Validator) clean(s string) string {
	return strings.TrimSpace(v.policy.Sanitize(s))
}

func (v *Validator) structErr(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		return describe(fe)
	})
	return saleerrors.Validation("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	// drop the top-level type name: "CreateQuickSaleRequest.products[0].title" -> "products[0].title"
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "url":
		return field + " must be a valid URL"
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}
