package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestDBConfigTypedReaders(t *testing.T) {
	t.Cleanup(func() { StoreDBConfig(time.Time{}, nil) })

	StoreDBConfig(time.Now(), map[string]json.RawMessage{
		SiteNameKey:                   json.RawMessage(`{"value":"  Ash Depot "}`),
		RatePerTonKey:                 json.RawMessage(`"192.75"`),
		RevokedTokenRetentionHoursKey: json.RawMessage(`"12"`),
		" ":                           json.RawMessage(`1`),
	})

	if got := SiteName(); got != "Ash Depot" {
		t.Fatalf("expected site name Ash Depot, got %q", got)
	}
	rate, ok := DBConfigDecimal(RatePerTonKey)
	if !ok || rate.String() != "192.75" {
		t.Fatalf("expected rate 192.75, got %s ok=%v", rate, ok)
	}
	hours, ok := DBConfigInt(RevokedTokenRetentionHoursKey)
	if !ok || hours != 12 {
		t.Fatalf("expected 12 hours, got %d ok=%v", hours, ok)
	}
	if len(DBConfigAll()) != 3 {
		t.Fatalf("expected blank key to be dropped, got %v", DBConfigAll())
	}
}

func TestDBConfigRejectsFractionalInt(t *testing.T) {
	t.Cleanup(func() { StoreDBConfig(time.Time{}, nil) })
	StoreDBConfig(time.Now(), map[string]json.RawMessage{RevokedTokenRetentionHoursKey: json.RawMessage(`1.5`)})
	if _, ok := DBConfigInt(RevokedTokenRetentionHoursKey); ok {
		t.Fatalf("expected fractional value to be rejected")
	}
	if SiteName() != DefaultSiteName {
		t.Fatalf("expected default site name")
	}
}

func TestDBConfigStrings(t *testing.T) {
	t.Cleanup(func() { StoreDBConfig(time.Time{}, nil) })
	StoreDBConfig(time.Now(), map[string]json.RawMessage{
		WebAuthnOriginsKey: json.RawMessage(`[" https://a.example.com ", "", "https://b.example.com"]`),
		WebAuthnRPIDKey:    json.RawMessage(`{"value":"a.example.com"}`),
	})

	origins := DBConfigStrings(WebAuthnOriginsKey)
	if len(origins) != 2 || origins[0] != "https://a.example.com" || origins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", origins)
	}
	if ids := DBConfigStrings(WebAuthnRPIDKey); len(ids) != 1 || ids[0] != "a.example.com" {
		t.Fatalf("expected single value list, got %v", ids)
	}
	if DBConfigStrings(WebAuthnRPNameKey) != nil {
		t.Fatalf("expected nil for missing key")
	}
}

func TestUpsertRefreshesSnapshot(t *testing.T) {
	t.Cleanup(func() { StoreDBConfig(time.Time{}, nil) })

	dsn := fmt.Sprintf("file:settings_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	ctx := context.Background()
	if errUpsert := Upsert(ctx, conn, RatePerTonKey, json.RawMessage(`200`)); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	if errUpsert := Upsert(ctx, conn, RatePerTonKey, json.RawMessage(`225`)); errUpsert != nil {
		t.Fatalf("upsert again: %v", errUpsert)
	}

	var count int64
	conn.Model(&models.Setting{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one settings row, got %d", count)
	}
	rate, ok := DBConfigDecimal(RatePerTonKey)
	if !ok || rate.IntPart() != 225 {
		t.Fatalf("expected refreshed rate 225, got %s ok=%v", rate, ok)
	}
	if DBConfigUpdatedAt().IsZero() {
		t.Fatalf("expected updated_at to be recorded")
	}
}
