package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Password bounds for the "pwd" alias. PasswordMax counts characters;
// PasswordMaxBytes is bcrypt's input limit, which multibyte text can hit
// first.
const (
	PasswordMin      = 6
	PasswordMax      = 72
	PasswordMaxBytes = 72
)

// SelfRoles are the roles a visitor may pick when registering.
var SelfRoles = []string{"member", "affiliate"}

// ResetTokenLen is the length of a hex-encoded reset token.
const ResetTokenLen = 40

// Init configures the validator behind gin's binding.
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Configure(v)
	}
}

// Configure makes v report JSON field names and registers the aliases:
//
//	pwd       password length bounds, in characters and in bytes
//	selfrole  one of SelfRoles
//	resettok  hex reset token
func Configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("maxbytes", maxBytes)
	v.RegisterAlias("pwd", fmt.Sprintf("min=%d,max=%d,maxbytes=%d", PasswordMin, PasswordMax, PasswordMaxBytes))
	v.RegisterAlias("selfrole", "oneof="+strings.Join(SelfRoles, " "))
	v.RegisterAlias("resettok", fmt.Sprintf("len=%d,hexadecimal", ResetTokenLen))
}

// ToDetails flattens binding and validation errors into field -> message.
func ToDetails(err error) map[string]string {
	if err == nil {
		return nil
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return map[string]string{"payload": "invalid json"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = message(fe)
		}
		return out
	}
	return map[string]string{"payload": "invalid payload"}
}

func message(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url", "http_url":
		return "must be a valid URL"
	case "len":
		return "must be exactly " + param + " characters long"
	case "min":
		return "must be at least " + param + unit(fe.Kind())
	case "max":
		return "must be at most " + param + unit(fe.Kind())
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(param), ", ")
	case "maxbytes":
		return "must be at most " + param + " bytes"
	case "pwd":
		if fe.ActualTag() == "maxbytes" {
			return fmt.Sprintf("must be at most %d bytes", PasswordMaxBytes)
		}
		return fmt.Sprintf("must be between %d and %d characters long", PasswordMin, PasswordMax)
	case "selfrole":
		return "must be one of: " + strings.Join(SelfRoles, ", ")
	case "resettok":
		return "must be a valid token"
	}
	if param != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), param)
	}
	return "failed " + fe.Tag()
}

// maxBytes limits the encoded length of a string, unlike max which counts
// runes.
func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= n
}

func unit(k reflect.Kind) string {
	if k == reflect.String {
		return " characters long"
	}
	return ""
}
