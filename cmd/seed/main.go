package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cardledger/internal/auth"
	"cardledger/internal/clock"
	"cardledger/internal/config"
	"cardledger/internal/db"
	"cardledger/internal/logger"
	"cardledger/internal/model"
	"cardledger/internal/pan"
	"cardledger/internal/repository"
	"cardledger/internal/service"
)

// seedTokenTTL keeps demo tokens usable for a working day.
const seedTokenTTL = 8 * time.Hour

var seedUsers = []model.User{
	{Name: "Ledger Admin", Email: "admin@cardledger.local", Role: model.RoleAdmin},
	{Name: "Demo User", Email: "user@cardledger.local", Role: model.RoleUser},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.LogLevel)

	gormDB, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("run migrations")
	}

	masterKey, err := pan.ParseMasterKey(cfg.PANMasterKey)
	if err != nil {
		log.WithError(err).Fatal("parse PAN master key")
	}
	cipher, err := pan.NewCipher(masterKey)
	if err != nil {
		log.WithError(err).Fatal("init PAN cipher")
	}

	ctx := context.Background()
	store := repository.NewStore(gormDB)
	users, err := seedAccounts(ctx, store.Repos().Users)
	if err != nil {
		log.WithError(err).Fatal("seed users")
	}
	adminUser, demoUser := users[0], users[1]

	cards := service.NewCardService(service.Deps{
		Store:  store,
		Cipher: cipher,
		Clock:  clock.RealClock{},
		Logger: log,
	})
	if err := seedCard(ctx, cards, adminUser, demoUser); err != nil {
		log.WithError(err).Fatal("seed card")
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret)
	for _, u := range users {
		token, err := jwtService.GenerateAccessToken(u, seedTokenTTL)
		if err != nil {
			log.WithError(err).Fatal("sign token")
		}
		fmt.Printf("%s (%s)\n  id:    %s\n  token: %s\n", u.Email, u.Role, u.ID, token)
	}
}

// seedAccounts creates the demo users that do not exist yet and returns all of them.
func seedAccounts(ctx context.Context, repo repository.UserRepository) ([]*model.User, error) {
	out := make([]*model.User, 0, len(seedUsers))
	for _, u := range seedUsers {
		existing, err := repo.FindByEmail(ctx, u.Email)
		if err == nil {
			out = append(out, existing)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("look up %s: %w", u.Email, err)
		}
		user := u
		if err := repo.Create(ctx, &user); err != nil {
			return nil, fmt.Errorf("create %s: %w", u.Email, err)
		}
		out = append(out, &user)
	}
	return out, nil
}

// seedCard gives the demo user one funded card unless they already hold one.
func seedCard(ctx context.Context, cards service.CardService, adminUser, owner *model.User) error {
	ownerCaller := model.Caller{ID: owner.ID, Role: owner.Role}
	existing, err := cards.ListCardsForUser(ctx, ownerCaller, model.Page{Limit: 1})
	if err != nil {
		return err
	}
	if existing.Total > 0 {
		return nil
	}

	expiry := time.Now().UTC().AddDate(3, 0, 0)
	card, err := cards.IssueCard(ctx, model.Caller{ID: adminUser.ID, Role: adminUser.Role}, service.IssueCardInput{
		OwnerID:     owner.ID,
		HolderName:  owner.Name,
		ExpiryYear:  expiry.Year(),
		ExpiryMonth: int(expiry.Month()),
	})
	if err != nil {
		return err
	}
	_, err = cards.Deposit(ctx, ownerCaller, card.ID, decimal.NewFromInt(100))
	return err
}
