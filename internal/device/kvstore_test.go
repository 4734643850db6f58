package device

import (
	"context"
	"errors"
	"testing"
)

func TestKVStore_GetSetDelete(t *testing.T) {
	kv := NewKVStore(setupTestDB(t).DB)
	ctx := context.Background()

	if _, err := kv.Get(ctx, KeyLoginMethod); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get() unset error = %v, want ErrKeyNotFound", err)
	}
	if err := kv.Set(ctx, KeyLoginMethod, "email"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Set(ctx, KeyLoginMethod, "phone"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, err := kv.Get(ctx, KeyLoginMethod); err != nil || v != "phone" {
		t.Errorf("Get() = %q, %v; want phone", v, err)
	}
	if err := kv.Delete(ctx, KeyLoginMethod); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := kv.Delete(ctx, KeyLoginMethod); err != nil {
		t.Errorf("Delete() unset key error = %v", err)
	}
}

func TestKVStore_JSON(t *testing.T) {
	kv := NewKVStore(setupTestDB(t).DB)
	ctx := context.Background()

	type profile struct {
		Nickname string `json:"nickname"`
		Region   string `json:"region"`
	}
	if err := kv.SetJSON(ctx, KeyProfile, profile{Nickname: "sam", Region: "EU"}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	var got profile
	if err := kv.GetJSON(ctx, KeyProfile, &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Nickname != "sam" || got.Region != "EU" {
		t.Errorf("GetJSON() = %+v", got)
	}

	if err := kv.Set(ctx, KeyProfile, "{broken"); err != nil {
		t.Fatal(err)
	}
	if err := kv.GetJSON(ctx, KeyProfile, &got); err == nil {
		t.Error("GetJSON() decoded broken JSON")
	}
}

func TestKVStore_SessionFlag(t *testing.T) {
	kv := NewKVStore(setupTestDB(t).DB)
	ctx := context.Background()

	if active, err := kv.SessionActive(ctx); err != nil || active {
		t.Errorf("SessionActive() unset = %v, %v", active, err)
	}
	if err := kv.SetSessionActive(ctx, true); err != nil {
		t.Fatal(err)
	}
	if active, err := kv.SessionActive(ctx); err != nil || !active {
		t.Errorf("SessionActive() = %v, %v; want true", active, err)
	}
}
