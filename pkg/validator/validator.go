package validator

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// rolePattern matches role identifiers as stored in the roles table.
var rolePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

var registerOnce sync.Once

// RoleName validates a role identifier.
func RoleName(fl validator.FieldLevel) bool {
	return IsRoleName(fl.Field().String())
}

func IsRoleName(s string) bool {
	return rolePattern.MatchString(s)
}

// Register adds the custom rules to v.
func Register(v *validator.Validate) error {
	return v.RegisterValidation("rolename", RoleName)
}

// RegisterGin installs the custom rules on gin's binding validator. Safe to
// call more than once.
func RegisterGin() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := Register(v); err != nil {
				panic(err)
			}
		}
	})
}
