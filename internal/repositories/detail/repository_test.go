package detail_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/internal/repositories/contact"
	"github.com/Ramsey-B/tansy/internal/repositories/detail"
	"github.com/Ramsey-B/tansy/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "tansy"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func seedContact(t *testing.T, db database.DB, kind models.Kind) int64 {
	t.Helper()
	contacts := contact.NewRepository(db, getTestLogger())
	created, err := contacts.Create(context.Background(), &models.Contact{Kind: kind, FirstName: "Detail", LastName: "Owner", OrgName: "Detail Owner Org"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = contacts.Delete(context.Background(), created.ID)
	})
	return created.ID
}

func TestDetailRepository_PersonCRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := detail.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ownerID := seedContact(t, db, models.KindPerson)
	t.Cleanup(func() {
		_ = repo.Delete(context.Background(), models.KindPerson, ownerID)
	})

	// A fresh contact has no detail row
	none, err := repo.GetByOwner(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)
	assert.Nil(t, none)

	// Test Create, including the date attribute
	d := &models.PersonDetail{ContactID: ownerID, SpouseName: "Pat", HomeChurch: "Grace Chapel"}
	require.True(t, d.SetField("birthday", "1980-04-12"))
	err = repo.Create(ctx, d)
	require.NoError(t, err)

	fetched, err := repo.GetByOwner(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, ownerID, fetched.OwnerID())
	spouse, _ := fetched.Field("spouse_name")
	birthday, _ := fetched.Field("birthday")
	marital, _ := fetched.Field("marital_status")
	assert.Equal(t, "Pat", spouse)
	assert.Equal(t, "1980-04-12", birthday)
	assert.Equal(t, "", marital)

	// Test UpdateFields; a blank birthday goes back to NULL
	err = repo.UpdateFields(ctx, models.KindPerson, ownerID, map[string]string{
		"marital_status": "married",
		"birthday":       "",
	})
	require.NoError(t, err)

	fetched, err = repo.GetByOwner(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)
	marital, _ = fetched.Field("marital_status")
	birthday, _ = fetched.Field("birthday")
	assert.Equal(t, "married", marital)
	assert.Equal(t, "", birthday)

	// Attribute names outside the kind's set are rejected
	err = repo.UpdateFields(ctx, models.KindPerson, ownerID, map[string]string{"denomination": "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	// Test Delete, twice: a gone row is not an error
	err = repo.Delete(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)
	err = repo.Delete(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)

	none, err = repo.GetByOwner(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDetailRepository_OrgCRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := detail.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ownerID := seedContact(t, db, models.KindOrganization)
	t.Cleanup(func() {
		_ = repo.Delete(context.Background(), models.KindOrganization, ownerID)
	})

	// congregation_size stays NULL until a value arrives
	err := repo.Create(ctx, &models.OrgDetail{ContactID: ownerID, Denomination: "Baptist"})
	require.NoError(t, err)

	fetched, err := repo.GetByOwner(ctx, models.KindOrganization, ownerID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	size, _ := fetched.Field("congregation_size")
	assert.Equal(t, "", size)

	err = repo.UpdateFields(ctx, models.KindOrganization, ownerID, map[string]string{"congregation_size": "240"})
	require.NoError(t, err)

	fetched, err = repo.GetByOwner(ctx, models.KindOrganization, ownerID)
	require.NoError(t, err)
	size, _ = fetched.Field("congregation_size")
	denom, _ := fetched.Field("denomination")
	assert.Equal(t, "240", size)
	assert.Equal(t, "Baptist", denom)
}

func TestDetailRepository_RepairPort(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := detail.NewRepository(db, getTestLogger())
	ctx := context.Background()

	ownerID := seedContact(t, db, models.KindPerson)
	t.Cleanup(func() {
		_ = repo.Delete(context.Background(), models.KindPerson, ownerID)
	})

	// The freshly created contact has no detail row, so it is the lowest
	// qualifying id above ownerID-1.
	ids, err := repo.FindMissingDetail(ctx, models.KindPerson, ownerID-1, 50)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, ownerID, ids[0])

	err = repo.CreateMissingDetail(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)

	filled, err := repo.GetByOwner(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)
	require.NotNil(t, filled)
	spouse, _ := filled.Field("spouse_name")
	assert.Equal(t, "", spouse)

	// Repeat passes are idempotent and no longer report the contact
	err = repo.CreateMissingDetail(ctx, models.KindPerson, ownerID)
	require.NoError(t, err)

	ids, err = repo.FindMissingDetail(ctx, models.KindPerson, ownerID-1, 50)
	require.NoError(t, err)
	assert.NotContains(t, ids, ownerID)

	// On the migrated schema the key column is NOT NULL and FK-covered, so
	// both repair sweeps come back clean.
	nulls, err := repo.CountNullKeys(ctx, models.KindPerson)
	require.NoError(t, err)
	assert.Zero(t, nulls)

	assigned, err := repo.AssignNullKeys(ctx, models.KindPerson)
	require.NoError(t, err)
	assert.Zero(t, assigned)

	defects, err := repo.CountDefects(ctx, models.KindPerson)
	require.NoError(t, err)
	assert.Zero(t, defects)

	orphans, err := repo.ListOrphanKeys(ctx, models.KindPerson, 10)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}
