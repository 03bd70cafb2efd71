package repos

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/types"
)

func testRepo(t *testing.T) BusinessPlanRepo {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.BusinessPlan{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewBusinessPlanRepo(db, log)
}

func TestBusinessPlanRepoCreateAndGet(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	plan := &types.BusinessPlan{
		UserID:  userID,
		Title:   "Coffee Cart",
		Content: datatypes.JSON(`{"threads":{}}`),
	}
	if _, err := repo.Create(ctx, nil, []*types.BusinessPlan{plan}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if plan.ID == uuid.Nil {
		t.Fatalf("create should assign an id")
	}

	got, err := repo.GetByID(ctx, nil, plan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Coffee Cart" || got.UserID != userID {
		t.Fatalf("got %+v", got)
	}
}

func TestBusinessPlanRepoGetMissing(t *testing.T) {
	repo := testRepo(t)
	if _, err := repo.GetByID(context.Background(), nil, uuid.New()); err != ErrPlanNotFound {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestBusinessPlanRepoGetByUserIDs(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	for _, title := range []string{"Plan A", "Plan B"} {
		if _, err := repo.Create(ctx, nil, []*types.BusinessPlan{{
			UserID:  owner,
			Title:   title,
			Content: datatypes.JSON(`{}`),
		}}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.Create(ctx, nil, []*types.BusinessPlan{{
		UserID:  other,
		Title:   "Other Plan",
		Content: datatypes.JSON(`{}`),
	}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	plans, err := repo.GetByUserIDs(ctx, nil, []uuid.UUID{owner})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}
	for _, p := range plans {
		if p.UserID != owner {
			t.Fatalf("foreign plan leaked: %+v", p)
		}
	}
}

func TestBusinessPlanRepoUpdateContent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	plan := &types.BusinessPlan{
		UserID:  uuid.New(),
		Title:   "Coffee Cart",
		Content: datatypes.JSON(`{}`),
	}
	if _, err := repo.Create(ctx, nil, []*types.BusinessPlan{plan}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateContent(ctx, nil, plan.ID, []byte(`{"vision":"## Vision"}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, plan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Content) != `{"vision":"## Vision"}` {
		t.Fatalf("content = %s", got.Content)
	}

	if err := repo.UpdateContent(ctx, nil, uuid.New(), []byte(`{}`)); err != ErrPlanNotFound {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
}
