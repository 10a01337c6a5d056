package middlewares

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/kitchen-display/utils"
)

// Objects checked against the policy table.
const (
	ObjOrders        = "orders"
	ObjKitchenOrders = "kitchen_orders"
	ObjKitchenStream = "kitchen_stream"
	ObjRefresh       = "kitchen_refresh"
	ObjOrderStatus   = "order_status"
	ObjOrderPriority = "order_priority"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// DefaultPolicies: chef memasak, staff mengantar dan membatalkan, admin bebas.
var DefaultPolicies = [][]string{
	{"admin", "*", "*"},

	{"chef", ObjKitchenOrders, "read"},
	{"chef", ObjKitchenStream, "read"},
	{"chef", ObjOrderStatus, "preparing"},
	{"chef", ObjOrderStatus, "ready"},

	{"staff", ObjOrders, "create"},
	{"staff", ObjKitchenOrders, "read"},
	{"staff", ObjKitchenStream, "read"},
	{"staff", ObjRefresh, "update"},
	{"staff", ObjOrderStatus, "ready"},
	{"staff", ObjOrderStatus, "completed"},
	{"staff", ObjOrderStatus, "cancelled"},
	{"staff", ObjOrderPriority, "update"},
}

// Authorizer wraps a casbin enforcer whose policies live in the feed DB
// (casbin_rule table).
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAuthorizer(db *gorm.DB) (*Authorizer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("casbin adapter: %w", err)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}

	// AddPolicy melewati rule yang sudah ada, aman dipanggil tiap start
	for _, rule := range DefaultPolicies {
		if _, err := enforcer.AddPolicy(rule); err != nil {
			return nil, fmt.Errorf("seed policy %v: %w", rule, err)
		}
	}
	return &Authorizer{enforcer: enforcer}, nil
}

func (a *Authorizer) Allowed(role, obj, act string) (bool, error) {
	return a.enforcer.Enforce(role, obj, act)
}

// RoleCheck -> cek role dari token terhadap policy (obj, act)
func (a *Authorizer) RoleCheck(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			utils.AbortError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			return
		}

		ok, err := a.Allowed(role, obj, act)
		if err != nil {
			utils.AbortError(c, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			utils.AbortError(c, http.StatusForbidden, fmt.Errorf("%s access to %s denied", role, obj))
			return
		}
		c.Next()
	}
}

// StreamRoleCheck cocokkan :role di path websocket dengan role di token.
func (a *Authorizer) StreamRoleCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("role") != c.GetString(ContextRole) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
