package authorization

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/coursepay/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	adapter, err := NewAdapter(db)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(adapter)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer}), db
}

func TestAuthorizeCatalogPublish(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Authorize(ctx, identity.Caller{UserID: "42", Role: identity.RoleAdmin}, ObjectCatalog, ActionCatalogPublish)
	assert.NoError(t, err)

	err = svc.Authorize(ctx, identity.Caller{UserID: "7", Role: identity.RoleUser}, ObjectCatalog, ActionCatalogPublish)
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.Authorize(ctx, identity.Caller{UserID: "7"}, ObjectCatalog, ActionCatalogPublish)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, identity.Caller{UserID: "42", Role: identity.RoleAdmin}, ObjectCatalog, ActionCatalogPublish))

	err := svc.Authorize(ctx, identity.Caller{UserID: "42", Role: identity.RoleUser}, ObjectCatalog, ActionCatalogPublish)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, identity.Caller{}, ObjectCatalog, ActionCatalogPublish), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, identity.Caller{UserID: "1"}, " ", ActionCatalogPublish), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, identity.Caller{UserID: "1"}, ObjectCatalog, ""), ErrInvalidAction)
}

func TestPoliciesArePersisted(t *testing.T) {
	_, db := newTestService(t)

	var count int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ? AND v0 = ?", "p", "role:admin").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAuditReadIsAdminOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, identity.Caller{UserID: "42", Role: identity.RoleAdmin}, ObjectAudit, ActionAuditRead))
	assert.ErrorIs(t, svc.Authorize(ctx, identity.Caller{UserID: "7"}, ObjectAudit, ActionAuditRead), ErrForbidden)
}
