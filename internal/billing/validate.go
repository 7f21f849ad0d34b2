package billing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// ValidationError describes one field of a record that does not match the
// expected schema. Path uses dotted notation with list indices, e.g.
// "line_items.0.credit_type.id".
type ValidationError struct {
	Path   string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidationErrors collects every schema problem found in a record.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validator is implemented by every record type the API returns. Shape
// returns a fresh presence shadow of the record: the same JSON keys held
// in pointer, slice or map fields so that an absent key stays nil and an
// explicit zero value does not.
type Validator interface {
	Shape() any
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode checks that raw carries every required key of T, then decodes it.
// Missing keys and mistyped values are reported as ValidationErrors; empty
// strings, zero numbers and empty lists are accepted.
func Decode[T Validator](raw []byte) (T, error) {
	var rec T

	shape := rec.Shape()
	if err := json.Unmarshal(raw, shape); err != nil {
		return rec, typeError(err)
	}
	if err := validate.Struct(shape); err != nil {
		return rec, fieldErrors(err)
	}

	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, typeError(err)
	}
	return rec, nil
}

func typeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return ValidationErrors{{Path: typeErr.Field, Reason: "expected " + typeErr.Type.String() + ", got " + typeErr.Value}}
	}
	return err
}

func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		reason := "field required"
		if fe.Tag() != "required" {
			reason = "failed " + fe.Tag()
		}
		out = append(out, ValidationError{Path: fieldPath(fe.Namespace()), Reason: reason})
	}
	return out
}

// fieldPath turns "invoiceShape.line_items[0].credit_type.id" into
// "line_items.0.credit_type.id".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.NewReplacer("[", ".", "]", "").Replace(ns)
}

type creditTypeShape struct {
	ID   *string `json:"id" validate:"required"`
	Name *string `json:"name" validate:"required"`
}

type customerShape struct {
	Name           *string        `json:"name" validate:"required"`
	CustomFields   map[string]any `json:"custom_fields" validate:"required"`
	IngestAliases  []string       `json:"ingest_aliases" validate:"required"`
	ID             *string        `json:"id" validate:"required"`
	CustomerConfig map[string]any `json:"customer_config" validate:"required"`
}

func (Customer) Shape() any { return &customerShape{} }

type subLineItemShape struct {
	ChargeID     *string        `json:"charge_id" validate:"required"`
	Name         *string        `json:"name" validate:"required"`
	Subtotal     *float64       `json:"subtotal" validate:"required"`
	Price        *float64       `json:"price" validate:"required"`
	Quantity     *float64       `json:"quantity" validate:"required"`
	CustomFields map[string]any `json:"custom_fields" validate:"required"`
}

type lineItemShape struct {
	Total        *float64            `json:"total" validate:"required"`
	CreditType   *creditTypeShape    `json:"credit_type" validate:"required"`
	Name         *string             `json:"name" validate:"required"`
	ProductID    *string             `json:"product_id" validate:"required"`
	Quantity     *float64            `json:"quantity" validate:"required"`
	CustomFields map[string]any      `json:"custom_fields" validate:"required"`
	SubLineItems []*subLineItemShape `json:"sub_line_items" validate:"required,dive,required"`
}

type invoiceAdjustmentShape struct {
	Total      *float64         `json:"total" validate:"required"`
	CreditType *creditTypeShape `json:"credit_type" validate:"required"`
}

type invoiceShape struct {
	ID                   *string                   `json:"id" validate:"required"`
	StartTimestamp       *string                   `json:"start_timestamp" validate:"required"`
	EndTimestamp         *string                   `json:"end_timestamp" validate:"required"`
	CustomerID           *string                   `json:"customer_id" validate:"required"`
	CustomerCustomFields map[string]any            `json:"customer_custom_fields" validate:"required"`
	Type                 *string                   `json:"type" validate:"required"`
	CreditType           *creditTypeShape          `json:"credit_type" validate:"required"`
	PlanID               *string                   `json:"plan_id" validate:"required"`
	PlanName             *string                   `json:"plan_name" validate:"required"`
	PlanCustomFields     map[string]any            `json:"plan_custom_fields" validate:"required"`
	Status               *string                   `json:"status" validate:"required"`
	Total                *float64                  `json:"total" validate:"required"`
	Subtotal             *float64                  `json:"subtotal" validate:"required"`
	LineItems            []*lineItemShape          `json:"line_items" validate:"required,dive,required"`
	InvoiceAdjustments   []*invoiceAdjustmentShape `json:"invoice_adjustments" validate:"required,dive,required"`
	CustomFields         map[string]any            `json:"custom_fields" validate:"required"`
	BillableStatus       *string                   `json:"billable_status" validate:"required"`
}

func (Invoice) Shape() any { return &invoiceShape{} }

type amountShape struct {
	Amount     *float64         `json:"amount" validate:"required"`
	CreditType *creditTypeShape `json:"credit_type" validate:"required"`
}

type balanceShape struct {
	EffectiveAt *string `json:"effective_at" validate:"required"`
}

type deductionShape struct {
	Amount         *float64 `json:"amount" validate:"required"`
	Reason         *string  `json:"reason" validate:"required"`
	RunningBalance *float64 `json:"running_balance" validate:"required"`
	EffectiveAt    *string  `json:"effective_at" validate:"required"`
	CreatedBy      *string  `json:"created_by" validate:"required"`
	CreditGrantID  *string  `json:"credit_grant_id" validate:"required"`
}

type creditGrantShape struct {
	ID                *string           `json:"id" validate:"required"`
	Name              *string           `json:"name" validate:"required"`
	CustomerID        *string           `json:"customer_id" validate:"required"`
	EffectiveAt       *string           `json:"effective_at" validate:"required"`
	ExpiresAt         *string           `json:"expires_at" validate:"required"`
	Priority          *float64          `json:"priority" validate:"required"`
	GrantAmount       *amountShape      `json:"grant_amount" validate:"required"`
	PaidAmount        *amountShape      `json:"paid_amount" validate:"required"`
	Balance           *balanceShape     `json:"balance" validate:"required"`
	Deductions        []*deductionShape `json:"deductions" validate:"required,dive,required"`
	PendingDeductions []*deductionShape `json:"pending_deductions" validate:"omitempty,dive,required"`
}

func (CreditGrant) Shape() any { return &creditGrantShape{} }
