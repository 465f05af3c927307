package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/config"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/connectivity"
)

func TestVersionCmd(t *testing.T) {
	appVersion, appCommit = "1.2.3", "abc1234"
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "storefront 1.2.3 (abc1234)\n" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestInspectReadsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("visitor:flowerShop_cart", `[{"id":"1","name":"Red Rose Bouquet","price":2500,"quantity":2}]`)
	mr.Set("visitor:flowerShop_user", `{"email":"anna@example.com","name":"anna","isLoggedIn":true}`)

	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("REDIS_SENTINEL_ADDRS", "")
	t.Setenv("LOG_LEVEL", "panic")

	cmd := newInspectCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--session", "visitor"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("could not decode output %q: %v", out.String(), err)
	}
	if snap.Count != 2 || snap.Total != 5000 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.User == nil || snap.User.Email != "anna@example.com" {
		t.Fatalf("unexpected user %+v", snap.User)
	}
}

func TestInspectNeedsSession(t *testing.T) {
	cmd := newInspectCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--session") {
		t.Fatalf("expected a missing session error, got %v", err)
	}
}

func TestOpenStorageRejectsUnknownBackend(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	_, err := openStorage(config.Config{StorageBackend: "etcd"}, log)
	if err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	log := newLogger(config.Config{LogLevel: "debug"})
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected a JSON formatter")
	}
}

func TestTracingShutdownClosesCollectorConn(t *testing.T) {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	if _, err := initTracing(context.Background(), log, ""); err == nil {
		t.Fatal("expected error for an empty collector address")
	}

	// Dialing is lazy, so nothing needs to listen on the address.
	tr, err := initTracing(context.Background(), log, "127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = tr.Shutdown(ctx)

	if got := tr.conn.GetState(); got != connectivity.Shutdown {
		t.Fatalf("expected conn state %v, got %v", connectivity.Shutdown, got)
	}
}
