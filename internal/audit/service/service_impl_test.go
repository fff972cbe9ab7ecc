package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/coursepay/internal/audit/domain"
	"github.com/smallbiznis/coursepay/internal/audit/repository"
	"github.com/smallbiznis/coursepay/internal/clock"
	obscontext "github.com/smallbiznis/coursepay/internal/observability/context"
	"github.com/smallbiznis/coursepay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, clk, db
}

func strPtr(v string) *string { return &v }

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	svc, _, _ := newTestService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, obscontext.ActorUser, "user-7")
	require.NoError(t, svc.AuditLog(ctx, "", nil, domain.ActionEntitlementGranted, domain.TargetInvoice, strPtr(" 99 "), map[string]any{
		"product_id": "go-101",
		"":           "dropped",
	}))
	require.NoError(t, svc.AuditLog(context.Background(), "", nil, domain.ActionCatalogPublished, "", nil, nil))

	resp, err := svc.List(context.Background(), domain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)

	var granted, published domain.AuditLog
	for _, entry := range resp.AuditLogs {
		switch entry.Action {
		case domain.ActionEntitlementGranted:
			granted = entry
		case domain.ActionCatalogPublished:
			published = entry
		}
	}

	assert.Equal(t, "user", granted.ActorType)
	require.NotNil(t, granted.ActorID)
	assert.Equal(t, "user-7", *granted.ActorID)
	require.NotNil(t, granted.TargetID)
	assert.Equal(t, "99", *granted.TargetID)
	assert.Equal(t, "go-101", granted.Metadata["product_id"])
	assert.Equal(t, "req-1", granted.Metadata["request_id"])
	assert.NotContains(t, granted.Metadata, "")

	assert.Equal(t, string(domain.ActorTypeSystem), published.ActorType)
	assert.Nil(t, published.ActorID)
	assert.Equal(t, "unknown", published.TargetType)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.ErrorIs(t, svc.AuditLog(context.Background(), "", nil, " ", domain.TargetCourse, nil, nil), domain.ErrInvalidAction)
}

func TestListFiltersAndPages(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, "system", strPtr("gateway"), domain.ActionEntitlementGranted, domain.TargetInvoice, strPtr(fmt.Sprint(i)), nil))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(ctx, "", nil, domain.ActionNotificationPartialDelivery, domain.TargetCourse, strPtr("go-101"), nil))

	req := domain.ListAuditLogRequest{Action: domain.ActionEntitlementGranted}
	req.PageSize = 2

	var targets []string
	for {
		resp, err := svc.List(ctx, req)
		require.NoError(t, err)
		for _, entry := range resp.AuditLogs {
			targets = append(targets, *entry.TargetID)
		}
		if !resp.HasMore {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	assert.Equal(t, []string{"4", "3", "2", "1", "0"}, targets)

	resp, err := svc.List(ctx, domain.ListAuditLogRequest{TargetType: domain.TargetCourse})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, domain.ActionNotificationPartialDelivery, resp.AuditLogs[0].Action)

	start := time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC)
	resp, err = svc.List(ctx, domain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, domain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	req := domain.ListAuditLogRequest{}
	req.PageToken = "garbage"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
