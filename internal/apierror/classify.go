package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vyrodovalexey/vibemuse-edge/internal/auth/jwt"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

// PostgreSQL constraint violation codes.
const (
	SQLStateUniqueViolation     = "23505"
	SQLStateForeignKeyViolation = "23503"
	SQLStateNotNullViolation    = "23502"
)

// Classifier recognises one family of failures and converts it into an
// *Error. It reports false for anything it does not recognise.
type Classifier interface {
	Classify(err error) (*Error, bool)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) (*Error, bool)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) (*Error, bool) {
	return f(err)
}

// Chain runs classifiers in order over a single failure.
type Chain struct {
	stages []Classifier
}

// ChainOption configures a Chain.
type ChainOption func(*chainOptions)

type chainOptions struct {
	logger      observability.Logger
	development bool
	extra       []Classifier
}

// WithLogger sets the logger used by classifiers that report diagnostics.
func WithLogger(logger observability.Logger) ChainOption {
	return func(o *chainOptions) {
		o.logger = logger
	}
}

// WithDevelopment enables development diagnostics.
func WithDevelopment(development bool) ChainOption {
	return func(o *chainOptions) {
		o.development = development
	}
}

// WithClassifiers appends classifiers after the built-in stages.
func WithClassifiers(classifiers ...Classifier) ChainOption {
	return func(o *chainOptions) {
		o.extra = append(o.extra, classifiers...)
	}
}

// NewChain creates the standard chain: validation, storage constraint,
// token, unmatched route, then any extra classifiers.
func NewChain(opts ...ChainOption) *Chain {
	o := &chainOptions{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	stages := []Classifier{
		ClassifierFunc(classifyValidation),
		&storageClassifier{logger: o.logger, development: o.development},
		ClassifierFunc(classifyToken),
		ClassifierFunc(classifyRoute),
	}
	stages = append(stages, o.extra...)

	return &Chain{stages: stages}
}

// Resolve converts err into exactly one *Error. Typed errors pass through
// every stage unchanged; anything still untyped at the end is wrapped as
// a non-operational internal error.
func (c *Chain) Resolve(err error) *Error {
	if err == nil {
		return nil
	}

	for _, stage := range c.stages {
		if typed, ok := As(err); ok {
			return typed
		}
		if typed, ok := stage.Classify(err); ok && typed != nil {
			err = typed
		}
	}

	return Wrap(err)
}

func classifyValidation(err error) (*Error, bool) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fieldPath(fe), Message: describeFieldError(fe)})
		}
		return UnprocessableEntity("Validation failed").WithDetails(fields).WithCause(err), true
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return UnprocessableEntity("Validation failed").WithDetails(verr.Fields).WithCause(err), true
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return PayloadTooLarge(fmt.Sprintf("Request body exceeds %d bytes", maxBytes.Limit)).WithCause(err), true
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return BadRequest("Malformed JSON body").WithCause(err), true
	case errors.Is(err, io.EOF):
		return BadRequest("Request body is required").WithCause(err), true
	case errors.As(err, &typeErr):
		return BadRequest("Malformed JSON body").
			WithDetails([]FieldError{{Field: typeErr.Field, Message: "must be of type " + typeErr.Type.String()}}).
			WithCause(err), true
	}

	return nil, false
}

// fieldPath strips the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required", "required_if", "required_with", "required_without":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "url", "http_url":
		return field + " must be a valid URL"
	case "uuid", "uuid4":
		return field + " must be a valid UUID"
	case "alphanum":
		return field + " must contain only letters and numbers"
	case "oneof":
		return field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q rule", field, fe.Tag())
	}
}

// sqlStater matches driver errors exposing a SQLSTATE code.
type sqlStater interface {
	SQLState() string
}

type storageClassifier struct {
	logger      observability.Logger
	development bool
}

// Classify maps constraint violations. Unrecognised codes pass through.
func (s *storageClassifier) Classify(err error) (*Error, bool) {
	code := ""
	var pgErr *pgconn.PgError
	var stater sqlStater
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &stater):
		code = stater.SQLState()
	default:
		return nil, false
	}

	switch code {
	case SQLStateUniqueViolation:
		return Conflict("Resource already exists").WithCause(err), true
	case SQLStateForeignKeyViolation:
		return BadRequest("Invalid reference").WithCause(err), true
	case SQLStateNotNullViolation:
		return BadRequest("Required field missing").WithCause(err), true
	}

	if s.development {
		s.logger.Debug("unclassified storage error", observability.String("sqlstate", code))
	}
	return nil, false
}

func classifyToken(err error) (*Error, bool) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		e := Unauthorized("Token expired").WithCause(err)
		e.Code = CodeTokenExpired
		return e, true
	case errors.Is(err, jwt.ErrTokenInvalid):
		e := Unauthorized("Invalid token").WithCause(err)
		e.Code = CodeInvalidToken
		return e, true
	}
	return nil, false
}

func classifyRoute(err error) (*Error, bool) {
	var rnf *RouteNotFoundError
	if errors.As(err, &rnf) {
		return NotFound(rnf.Error()).WithCause(err), true
	}
	return nil, false
}
