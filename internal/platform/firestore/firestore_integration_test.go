//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/threadcart/storefront/internal/platform/config"
	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
)

type stockLevel struct {
	ProductID string `firestore:"productId"`
	Size      string `firestore:"size"`
	Available int    `firestore:"available"`
}

func stockCollection(provider *pfirestore.Provider) *pfirestore.Collection[stockLevel] {
	return pfirestore.NewCollection[stockLevel](provider, "stock_levels",
		func(v stockLevel) (any, error) { return v, nil },
		func(snap *firestore.DocumentSnapshot) (stockLevel, error) {
			var v stockLevel
			err := snap.DataTo(&v)
			return v, err
		},
	)
}

func TestCollectionAgainstEmulator(t *testing.T) {
	endpoint := startEmulator(t)
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "stock-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	stock := stockCollection(provider)
	shirtM := stockLevel{ProductID: "p1", Size: "M", Available: 4}
	if err := stock.Create(ctx, "p1_M", shirtM); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := stock.Create(ctx, "p1_M", shirtM); !hasClass(err, "IsConflict") {
		t.Fatalf("expected conflict for duplicate create, got %v", err)
	}
	if err := stock.Replace(ctx, "p1_L", stockLevel{ProductID: "p1", Size: "L"}); !hasClass(err, "IsNotFound") {
		t.Fatalf("expected replace of a missing doc to fail, got %v", err)
	}
	if err := stock.Set(ctx, "p1_L", stockLevel{ProductID: "p1", Size: "L", Available: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	levels, err := stock.GetAll(ctx, []string{"p1_M", "p1_L", "p1_XL"})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(levels) != 2 || levels["p1_M"].Available != 4 || levels["p1_L"].Available != 1 {
		t.Fatalf("unexpected batch read %#v", levels)
	}

	inStock, err := stock.Query(ctx, func(q firestore.Query) firestore.Query { return q.Where("available", ">", 2) })
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(inStock) != 1 || inStock[0].Size != "M" {
		t.Fatalf("unexpected query result %#v", inStock)
	}

	uow := pfirestore.NewUnitOfWork(provider, pfirestore.WithTxAttempts(3), pfirestore.WithTxTimeout(10*time.Second))
	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := stock.Create(ctx, "p2_S", stockLevel{ProductID: "p2", Size: "S", Available: 10}); err != nil {
			return err
		}
		return stock.Update(ctx, "p1_M", []firestore.Update{{Path: "available", Value: firestore.Increment(-2)}})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if got, err := stock.Get(ctx, "p1_M"); err != nil || got.Available != 2 {
		t.Fatalf("expected decrement to commit, got %#v / %v", got, err)
	}

	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		return stock.Create(ctx, "p2_S", stockLevel{ProductID: "p2", Size: "S"})
	})
	if !hasClass(err, "IsConflict") {
		t.Fatalf("expected conflict inside transaction, got %v", err)
	}

	errAbort := errors.New("abort")
	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := stock.Update(ctx, "p1_M", []firestore.Update{{Path: "available", Value: 0}}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got, _ := stock.Get(ctx, "p1_M"); got.Available != 2 {
		t.Fatalf("expected rollback, available=%d", got.Available)
	}

	if err := stock.Delete(ctx, "p2_S"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := stock.Get(ctx, "p2_S"); !hasClass(err, "IsNotFound") {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	canceled, stop := context.WithCancel(context.Background())
	stop()
	if err := uow.RunInTx(canceled, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func hasClass(err error, class string) bool {
	switch class {
	case "IsConflict":
		var c interface{ IsConflict() bool }
		return errors.As(err, &c) && c.IsConflict()
	case "IsNotFound":
		var c interface{ IsNotFound() bool }
		return errors.As(err, &c) && c.IsNotFound()
	}
	return false
}

// startEmulator runs the Firestore emulator in docker and returns its host:port once it
// accepts connections. The test is skipped when docker is unavailable.
func startEmulator(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		"gcr.io/google.com/cloudsdktool/cloud-sdk:emulators",
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("start emulator: %v - %s", err, out)
	}
	container := strings.TrimSpace(string(out))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(ctx, "docker", "stop", container).Run()
	})

	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	for deadline := time.Now().Add(30 * time.Second); time.Now().Before(deadline); time.Sleep(250 * time.Millisecond) {
		if conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond); err == nil {
			_ = conn.Close()
			return endpoint
		}
	}
	t.Fatalf("emulator at %s did not become ready", endpoint)
	return ""
}
