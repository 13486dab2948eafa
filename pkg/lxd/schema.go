package lxd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	jsonNull = []byte("null")
	timeType = reflect.TypeFor[time.Time]()
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}

			return name
		})

		// Registration only fails on an empty tag or nil func.
		_ = validate.RegisterValidation("operation_status", func(fl validator.FieldLevel) bool {
			return StateOf(StatusCode(fl.Field().Int())) != OperationStateUnknown
		})
	})

	return validate
}

// DecodeEnvelope parses a response body into an envelope and checks the
// invariants of its tag.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Reason: "empty response body"}
	}

	var env Envelope

	err := json.Unmarshal(trimmed, &env)
	if err != nil {
		return nil, decodeError(err, "")
	}

	err = env.Validate()
	if err != nil {
		return nil, err
	}

	return &env, nil
}

// DecodeEnvelopeAs is DecodeEnvelope that also requires a given kind. An
// error envelope is returned as *APIError.
func DecodeEnvelopeAs(raw []byte, expected ResponseType) (*Envelope, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	if env.Type == ResponseTypeError {
		return nil, env.APIError(0)
	}

	if env.Type != expected {
		return nil, &ValidationError{
			Path:   "type",
			Reason: fmt.Sprintf("expected %s response, got %s", expected, env.Type),
		}
	}

	return env, nil
}

// Validate checks the tag-specific invariants of the envelope.
func (e *Envelope) Validate() error {
	switch e.Type {
	case ResponseTypeSync:
		return nil
	case ResponseTypeAsync:
		if e.Operation == "" {
			return &ValidationError{Path: "operation", Reason: "async response without operation reference"}
		}

		return nil
	case ResponseTypeError:
		if e.Error == "" {
			return &ValidationError{Path: "error", Reason: "error response without message"}
		}

		return nil
	case "":
		return &ValidationError{Path: "type", Reason: "required field missing"}
	default:
		return &ValidationError{Path: "type", Reason: fmt.Sprintf("unknown response type %q", e.Type)}
	}
}

// APIError converts an error envelope into an *APIError.
func (e *Envelope) APIError(httpStatus int) *APIError {
	if httpStatus == 0 {
		httpStatus = e.ErrorCode
	}

	return &APIError{
		StatusCode: httpStatus,
		Code:       e.ErrorCode,
		Message:    e.Error,
	}
}

// Decode parses raw into a T and validates it. Unknown fields are ignored.
// A null or absent value is only accepted when T is not a struct. Failures
// are always *ValidationError with path prefixed to the field path.
func Decode[T any](raw json.RawMessage, path string) (*T, error) {
	var value T

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		if reflect.TypeFor[T]().Kind() == reflect.Struct {
			return nil, &ValidationError{Path: path, Reason: "required value missing"}
		}

		return &value, nil
	}

	err := json.Unmarshal(trimmed, &value)
	if err != nil {
		return nil, decodeError(err, path)
	}

	err = validateValue(reflect.ValueOf(&value).Elem(), path)
	if err != nil {
		return nil, err
	}

	return &value, nil
}

// DecodeList parses a JSON array of T, validating each element.
func DecodeList[T any](raw json.RawMessage, path string) ([]T, error) {
	list, err := Decode[[]T](raw, path)
	if err != nil {
		return nil, err
	}

	return *list, nil
}

// Validate checks v against its schema, reporting paths under path.
func Validate(v any, path string) error {
	return validateValue(reflect.ValueOf(v), path)
}

// Encode validates v and serialises it as JSON.
func Encode(v any) ([]byte, error) {
	err := Validate(v, "")
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	return data, nil
}

func validateValue(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}

		return validateValue(v.Elem(), path)
	case reflect.Struct:
		if v.Type() == timeType {
			return nil
		}

		return fieldError(validatorInstance().Struct(v.Interface()), path)
	case reflect.Slice, reflect.Array:
		if !holdsStruct(v.Type().Elem()) {
			return nil
		}

		for i := range v.Len() {
			err := validateValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return err
			}
		}
	case reflect.Map:
		if !holdsStruct(v.Type().Elem()) {
			return nil
		}

		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})

		for _, key := range keys {
			err := validateValue(v.MapIndex(key), joinPath(path, fmt.Sprint(key.Interface())))
			if err != nil {
				return err
			}
		}
	default:
	}

	return nil
}

func holdsStruct(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		return t != timeType
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		return holdsStruct(t.Elem())
	default:
		return false
	}
}

func fieldError(err error, path string) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]

		return &ValidationError{
			Path:   joinPath(path, trimNamespace(fe.Namespace())),
			Reason: validationReason(fe),
		}
	}

	return &ValidationError{Path: path, Reason: err.Error()}
}

// trimNamespace drops the leading struct type name from a validator namespace.
func trimNamespace(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return ""
	}

	return rest
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field missing"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "operation_status":
		return fmt.Sprintf("unknown operation status code %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func decodeError(err error, path string) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{
			Path:   joinPath(path, typeErr.Field),
			Reason: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ValidationError{
			Path:   path,
			Reason: fmt.Sprintf("malformed JSON at offset %d: %v", syntaxErr.Offset, syntaxErr),
		}
	}

	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return &ValidationError{Path: path, Reason: "invalid timestamp " + timeErr.Value}
	}

	return &ValidationError{Path: path, Reason: err.Error()}
}

func joinPath(base, field string) string {
	switch {
	case field == "":
		return base
	case base == "":
		return field
	case strings.HasPrefix(field, "["):
		return base + field
	default:
		return base + "." + field
	}
}
