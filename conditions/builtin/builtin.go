/*
Package builtin provides the registry of the conditions shipped with the
gateway.
*/
package builtin

import (
	"github.com/passeplat/passeplat/conditions"
	"github.com/passeplat/passeplat/conditions/request"
	"github.com/passeplat/passeplat/conditions/response"
	"github.com/passeplat/passeplat/conditions/traffic"
	"github.com/passeplat/passeplat/openapi"
)

// MakeRegistry returns a registry with all the built-in conditions. The
// openapi condition fails to instantiate when v is nil.
func MakeRegistry(v openapi.Validator) *conditions.Registry {
	r := conditions.NewRegistry()
	r.Add(
		traffic.New(),
		request.NewMethod(),
		request.NewHeader(),
		request.NewQuery(),
		response.NewStatus(),
		response.NewJSONBody(),
		openapi.NewCondition(v),
	)

	return r
}
