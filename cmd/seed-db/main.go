package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/Niphilbert/e-Commerce-Backend/internal/credential"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
	"github.com/Niphilbert/e-Commerce-Backend/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

type adminAccount struct {
	email    string
	username string
	password string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		admin        adminAccount
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzip-compressed (.json.gz)")
	flag.StringVar(&admin.email, "admin-email", "", "email of the admin account to seed (or SHOP_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&admin.username, "admin-username", "admin", "username of the admin account")
	flag.StringVar(&admin.password, "admin-password", "", "password of the admin account (or SHOP_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if admin.email == "" {
		admin.email = os.Getenv("SHOP_SEED_ADMIN_EMAIL")
	}
	if admin.password == "" {
		admin.password = os.Getenv("SHOP_SEED_ADMIN_PASSWORD")
	}
	if (admin.email == "") != (admin.password == "") {
		slog.Error("admin email and password must be set together")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, admin); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, admin adminAccount) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	versions, err := postgres.RunMigrations(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "run migrations")
	}
	slog.Info("migrations applied", slog.Any("versions", versions))

	var creatorID *string
	if admin.email != "" {
		id, err := seedAdmin(ctx, postgres.NewUserRepository(pool), admin)
		if err != nil {
			return errors.Wrap(err, "seed admin")
		}
		creatorID = &id
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile, creatorID); err != nil {
		return errors.Wrap(err, "seed products")
	}

	return nil
}

func seedAdmin(ctx context.Context, repo *postgres.UserRepository, admin adminAccount) (string, error) {
	slog.Info("seeding admin account", slog.String("email", admin.email))

	hash, err := credential.New(nil, 0).Hash(admin.password)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Username:     admin.username,
		Email:        admin.email,
		PasswordHash: hash,
	}
	if err := repo.UpsertAdmin(ctx, u); err != nil {
		return "", err
	}

	slog.Info("upserted admin", slog.String("id", u.ID), slog.String("username", u.Username))

	return u.ID, nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string, creatorID *string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	products, err := readProducts(productsFile)
	if err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := repo.Upsert(ctx, &product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			Category:    p.Category,
			CreatorID:   creatorID,
		}); err != nil {
			return err
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func readProducts(path string) ([]productJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var products []productJSON
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return products, nil
}
