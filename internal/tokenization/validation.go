package tokenization

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Content keys checked at submission.
const (
	FieldAssetName     = "asset_name"
	FieldAssetCategory = "asset_category"
	FieldTokenName     = "token_name"
	FieldTokenSymbol   = "token_symbol"
	FieldTotalSupply   = "total_supply"
	FieldTokenPrice    = "token_price"
	FieldAssetValue    = "asset_value"
	FieldJurisdiction  = "jurisdiction"
)

var numericFields = map[string]struct{}{
	FieldTotalSupply: {},
	FieldTokenPrice:  {},
	FieldAssetValue:  {},
}

var utilityRules = map[string]interface{}{
	FieldAssetName:     "required,max=200",
	FieldAssetCategory: "required,max=100",
	FieldTokenName:     "required,max=100",
	FieldTokenSymbol:   "required,max=11",
	FieldTotalSupply:   "gt=0",
	FieldTokenPrice:    "gt=0",
}

var securityRules = withRules(utilityRules, map[string]interface{}{
	FieldAssetValue:   "gt=0",
	FieldJurisdiction: "required,max=100",
})

func withRules(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func rulesFor(tokenType enums.TokenType) (map[string]interface{}, error) {
	switch tokenType {
	case enums.TokenTypeUtility:
		return utilityRules, nil
	case enums.TokenTypeSecurity:
		return securityRules, nil
	default:
		return nil, fmt.Errorf("unsupported token type %q", tokenType)
	}
}

// SignatureInput is the wallet signature captured by the client at submission.
// It is stored verbatim and never verified cryptographically.
type SignatureInput struct {
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	Address   string `json:"address" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// ValidateSubmission checks the mandatory content for the draft's token type and
// the signature record. Failures carry one detail entry per offending field.
func ValidateSubmission(tokenType enums.TokenType, fields map[string]any, sig SignatureInput) error {
	rules, err := rulesFor(tokenType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid token type")
	}

	details := map[string]string{}
	data := make(map[string]interface{}, len(rules))
	for key := range rules {
		value, problem := normalizeField(key, fields[key])
		if problem == "" && value == nil {
			problem = "is required"
		}
		if problem != "" {
			details[key] = problem
			continue
		}
		data[key] = value
	}

	checked := make(map[string]interface{}, len(rules))
	for key, rule := range rules {
		if _, bad := details[key]; !bad {
			checked[key] = rule
		}
	}
	for key, fieldErr := range validate.ValidateMap(data, checked) {
		details[key] = mapRuleMessage(fieldErr)
	}

	if err := validate.Struct(sig); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				details["signature."+fe.Field()] = ruleMessage(fe)
			}
		} else {
			details["signature"] = err.Error()
		}
	}

	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "draft is missing required fields").
		WithDetails(details)
}

// normalizeField trims strings and coerces numeric strings so numeric rules
// compare values rather than lengths.
func normalizeField(key string, raw any) (any, string) {
	if raw == nil {
		return nil, ""
	}
	_, numeric := numericFields[key]
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if !numeric {
			return trimmed, ""
		}
		if trimmed == "" {
			return nil, ""
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, "must be a number"
		}
		return f, ""
	case json.Number:
		// numbers read back from a JSON column
		if !numeric {
			return nil, "must be text"
		}
		f, err := v.Float64()
		if err != nil {
			return nil, "must be a number"
		}
		return f, ""
	case float64, float32, int, int32, int64:
		if !numeric {
			return nil, "must be text"
		}
		return v, ""
	default:
		return nil, "has an unsupported type"
	}
}

func mapRuleMessage(err interface{}) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return ruleMessage(errs[0])
	}
	return "is invalid"
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "datetime":
		return "must be an RFC3339 timestamp"
	}
	return "is invalid"
}

func signedAt(sig SignatureInput) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(sig.Timestamp))
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
