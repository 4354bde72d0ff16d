package enforce

import (
	"fmt"
	"math"

	"github.com/greymass/ramindex/libraries/logger"
)

func init() {
	CheckCompiler()
}

// Violation is the panic value raised by ENFORCE.
type Violation struct {
	Cause   error
	Context string
}

func (v *Violation) Error() string {
	if v.Cause == nil {
		return "ENFORCE: " + v.Context
	}
	return fmt.Sprintf("ENFORCE: %s: %v", v.Context, v.Cause)
}

func (v *Violation) Unwrap() error { return v.Cause }

// ENFORCE panics when query is false or a non-nil error. Other types pass.
func ENFORCE(query interface{}, args ...interface{}) {
	var cause error
	switch t := query.(type) {
	case bool:
		if t {
			return
		}
	case error:
		if t == nil {
			return
		}
		cause = t
	default:
		return
	}
	context := fmt.Sprint(args...)
	logger.Error("ENFORCE: %s %v", context, cause)
	panic(&Violation{Cause: cause, Context: context})
}

// Recover turns an ENFORCE panic into an error. Use as: defer enforce.Recover(&err).
// Panics that did not come from ENFORCE are re-raised.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if v, ok := r.(*Violation); ok {
		*err = v
		return
	}
	panic(r)
}

func CheckCompiler() {
	myint := int(math.MaxInt64) // Shouldn't compile on a 32 bit system.
	myint64 := int64(math.MaxInt64)
	ENFORCE(uint64(myint) == uint64(myint64), "Must be on 64 bit system.")
}
