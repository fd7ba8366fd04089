package sandbox

import (
	"github.com/dop251/goja"
)

// Exception is a value thrown by a script.
type Exception struct {
	Name    string
	Message string
	Stack   string
}

func (e *Exception) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func newException(ex *goja.Exception) *Exception {
	e := &Exception{Stack: ex.String()}
	val := ex.Value()
	obj, ok := val.(*goja.Object)
	if !ok {
		if val != nil {
			e.Message = val.String()
		}
		return e
	}
	e.Name = stringProp(obj, "name")
	e.Message = stringProp(obj, "message")
	if e.Name == "" && e.Message == "" {
		e.Message = obj.String()
	}
	if stack := stringProp(obj, "stack"); stack != "" {
		e.Stack = stack
	}
	return e
}

func stringProp(obj *goja.Object, key string) string {
	v := obj.Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
