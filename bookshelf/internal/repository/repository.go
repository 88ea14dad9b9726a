package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/errs"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	ListBooks(ctx context.Context) ([]model.Book, error)
	CreateBook(ctx context.Context, book model.Book) error
	// UpdateBook locks the row, lets mutate change it and writes it back
	// in one transaction.
	UpdateBook(ctx context.Context, id string, mutate func(*model.Book)) (model.Book, error)
	DeleteBook(ctx context.Context, id string) (model.Book, error)
}

type repository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	if db == nil {
		return nil, errors.New("nil pool")
	}
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName = `books`
)

var (
	qb     = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	tracer = otel.Tracer("repository")

	bookColumns = []string{
		"id", "title", "author", "genre", "rating",
		"review", "moods", "status", "start_date", "finish_date",
	}
)

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	ctx, span := tracer.Start(ctx, "Book.Repository.ListBooks")
	defer span.End()

	query, args, err := listBooksQuery()
	if err != nil {
		return nil, err
	}

	var books []model.Book
	err = pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		books, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Book])
		return err
	})
	if err != nil {
		r.fail(span, "ListBooks", query, err)
		return nil, err
	}

	for i := range books {
		normalize(&books[i])
	}
	return books, nil
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) error {
	ctx, span := tracer.Start(ctx, "Book.Repository.CreateBook",
		trace.WithAttributes(attribute.String("book.id", book.ID)))
	defer span.End()

	query, args, err := insertBookQuery(book)
	if err != nil {
		return err
	}

	err = pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		r.fail(span, "CreateBook", query, err)
		return err
	}
	return nil
}

func (r *repository) UpdateBook(ctx context.Context, id string, mutate func(*model.Book)) (model.Book, error) {
	ctx, span := tracer.Start(ctx, "Book.Repository.UpdateBook",
		trace.WithAttributes(attribute.String("book.id", id)))
	defer span.End()

	var book model.Book
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		if book, err = r.lockBook(ctx, tx, id); err != nil {
			return err
		}
		mutate(&book)
		normalize(&book)

		query, args, err := updateBookQuery(id, book)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Book{}, err
		}
		r.fail(span, "UpdateBook", "", err)
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) DeleteBook(ctx context.Context, id string) (model.Book, error) {
	ctx, span := tracer.Start(ctx, "Book.Repository.DeleteBook",
		trace.WithAttributes(attribute.String("book.id", id)))
	defer span.End()

	var book model.Book
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		if book, err = r.lockBook(ctx, tx, id); err != nil {
			return err
		}
		query, args, err := deleteBookQuery(id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Book{}, err
		}
		r.fail(span, "DeleteBook", "", err)
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) lockBook(ctx context.Context, tx pgx.Tx, id string) (model.Book, error) {
	query, args, err := lockBookQuery(id)
	if err != nil {
		return model.Book{}, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return model.Book{}, err
	}
	book, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		return model.Book{}, notFound(err)
	}
	normalize(&book)
	return book, nil
}

func listBooksQuery() (string, []interface{}, error) {
	return qb.Select(bookColumns...).
		From(booksTableName).
		ToSql()
}

func insertBookQuery(book model.Book) (string, []interface{}, error) {
	return qb.Insert(booksTableName).
		Columns(bookColumns...).
		Values(book.ID, book.Title, book.Author, book.Genre, book.Rating,
			book.Review, book.Moods, book.Status, book.StartDate, book.FinishDate).
		ToSql()
}

// updateBookQuery writes every column but id.
func updateBookQuery(id string, book model.Book) (string, []interface{}, error) {
	return qb.Update(booksTableName).
		SetMap(map[string]interface{}{
			"title":       book.Title,
			"author":      book.Author,
			"genre":       book.Genre,
			"rating":      book.Rating,
			"review":      book.Review,
			"moods":       book.Moods,
			"status":      book.Status,
			"start_date":  book.StartDate,
			"finish_date": book.FinishDate,
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func deleteBookQuery(id string) (string, []interface{}, error) {
	return qb.Delete(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func lockBookQuery(id string) (string, []interface{}, error) {
	return qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		Suffix("for update").
		ToSql()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

func (r *repository) fail(span trace.Span, op, query string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	fields := []zap.Field{zap.Error(err)}
	if query != "" {
		fields = append(fields, zap.String("q", query))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields, zap.String("code", pgErr.Code))
		if pgErr.Code == pgerrcode.UniqueViolation {
			r.log.Warn(op+": duplicate id", fields...)
			return
		}
	}
	r.log.Error(op, fields...)
}

func normalize(book *model.Book) {
	if book.Moods == nil {
		book.Moods = []string{}
	}
}
