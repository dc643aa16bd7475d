package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-gateway/internal/identity"
	"github.com/hackgods/clinic-appointment-gateway/internal/logging"
	redisclient "github.com/hackgods/clinic-appointment-gateway/internal/redis"
)

// seed writes a fake signed-in session into the Redis identity store so the
// gateway can resolve a clinic and attach a credential during local runs.
func main() {
	logger, err := logging.New("dev", "info")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	addr := getEnv("REDIS_ADDR", "127.0.0.1:6379")
	namespace := getEnv("IDENTITY_NAMESPACE", "session:default")
	token := getEnv("SEED_TOKEN", "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := redisclient.NewRedisClient(ctx, addr, os.Getenv("REDIS_USERNAME"), os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	store := identity.NewRedisStore(rdb, namespace)
	session := fakeSession(token)

	for _, kv := range []struct{ key, value string }{
		{identity.KeyToken, session.token},
		{identity.KeyClinicData, session.clinicData},
		{identity.KeyUserData, session.userData},
		{identity.KeyDefaultClinicID, session.clinicID},
	} {
		if err := store.Set(ctx, kv.key, kv.value); err != nil {
			logger.Fatal("seed identity key", zap.String("key", kv.key), zap.Error(err))
		}
	}

	logger.Info("seed complete",
		zap.String("namespace", namespace),
		zap.String("clinic_id", session.clinicID),
		zap.String("user_id", session.userID),
	)
}

type session struct {
	token      string
	clinicID   string
	userID     string
	clinicData string
	userData   string
}

func fakeSession(token string) session {
	if token == "" {
		token = gofakeit.UUID()
	}
	clinicID := uuid.NewString()
	userID := uuid.NewString()

	clinic := map[string]any{
		"_id":     clinicID,
		"name":    gofakeit.Company() + " Clinic",
		"phone":   gofakeit.Phone(),
		"address": gofakeit.Address().Address,
	}
	user := map[string]any{
		"_id":       userID,
		"firstName": gofakeit.FirstName(),
		"lastName":  gofakeit.LastName(),
		"email":     gofakeit.Email(),
		"role":      "receptionist",
		"clinicId":  map[string]any{"_id": clinicID, "name": clinic["name"]},
	}

	clinicJSON, _ := json.Marshal(clinic)
	userJSON, _ := json.Marshal(user)

	return session{
		token:      token,
		clinicID:   clinicID,
		userID:     userID,
		clinicData: string(clinicJSON),
		userData:   string(userJSON),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
