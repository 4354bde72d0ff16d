package serviceclient

import (
	"fmt"

	"github.com/greymass/ramindex/libraries/encoding"
)

type ServiceError struct {
	Path       string
	StatusCode int
	Message    string
	Body       []byte
}

// nodeError is the error envelope a chain node returns.
type nodeError struct {
	Code  int `json:"code"`
	Error struct {
		Name string `json:"name"`
		What string `json:"what"`
	} `json:"error"`
}

func (e *ServiceError) Error() string {
	if what := e.What(); what != "" {
		return fmt.Sprintf("service error %d on %s: %s", e.StatusCode, e.Path, what)
	}
	if len(e.Body) > 0 {
		return fmt.Sprintf("service error %d on %s: %s", e.StatusCode, e.Path, string(e.Body))
	}
	return fmt.Sprintf("service error %d on %s: %s", e.StatusCode, e.Path, e.Message)
}

func (e *ServiceError) node() (nodeError, bool) {
	var ne nodeError
	if len(e.Body) == 0 || encoding.JSONiter.Unmarshal(e.Body, &ne) != nil {
		return ne, false
	}
	return ne, ne.Error.Name != "" || ne.Error.What != ""
}

// What returns the node's error description, if the body carried one.
func (e *ServiceError) What() string {
	if ne, ok := e.node(); ok {
		return ne.Error.What
	}
	return ""
}

// IsUnknownKey reports a node lookup miss (e.g. get_account of an absent account),
// which nodes report with a 500 status.
func (e *ServiceError) IsUnknownKey() bool {
	ne, ok := e.node()
	return ok && (ne.Error.Name == "unknown_key_exception" || ne.Error.What == "unknown key")
}
