//go:build postgres_integration

package store

import (
    "context"
    "os"
    "testing"

    "wavebatch/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    ctx := context.Background()
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(ctx); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(ctx); err != nil { t.Fatalf("Migrate: %v", err) }

    rec, err := p.CreateInstance(ctx, model.InstanceRecord{Name: "it", Digest: "d", NumOrders: 1, NumItems: 1, NumAisles: 1, MaxItems: 5, Raw: []byte("1 1 1\n1 0 1\n1 0 1\n0 5\n")})
    if err != nil { t.Fatalf("CreateInstance: %v", err) }
    run, err := p.CreateRun(ctx, model.Run{InstanceID: rec.ID, Algorithm: "grasp", Seed: 1})
    if err != nil { t.Fatalf("CreateRun: %v", err) }
    run.Status = model.RunCompleted
    run.Orders = []int{0}
    run.Aisles = []int{0}
    if err := p.UpdateRun(ctx, run); err != nil { t.Fatalf("UpdateRun: %v", err) }
    got, err := p.GetRun(ctx, run.ID)
    if err != nil { t.Fatalf("GetRun: %v", err) }
    if got.Status != model.RunCompleted || len(got.Orders) != 1 { t.Fatalf("unexpected run %+v", got) }
}
