package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/model"
	bookRepo "github.com/Astemirdum/bookshelf-service/bookshelf/internal/repository"
)

type Service struct {
	log   *zap.Logger
	repo  bookRepo.Repository
	newID func() string
}

func NewService(repo bookRepo.Repository, log *zap.Logger) *Service {
	return &Service{
		log:   log.Named("service"),
		repo:  repo,
		newID: uuid.NewString,
	}
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []model.Book{}
	}
	return books, nil
}

// CreateBook fills every absent field with its default, so the stored row
// never depends on which keys the client happened to send.
func (s *Service) CreateBook(ctx context.Context, in model.BookInput) (model.Book, error) {
	book := model.Book{
		ID:     s.newID(),
		Title:  model.DefaultTitle,
		Moods:  []string{},
		Status: model.StatusToBeRead,
	}
	if id, ok := in.ID.Get(); ok && id != "" {
		book.ID = id
	}
	apply(&book, in)

	if err := s.repo.CreateBook(ctx, book); err != nil {
		return model.Book{}, err
	}
	s.log.Debug("book created", zap.String("id", book.ID))
	return book, nil
}

// UpdateBook touches only the fields present in the input. The id is immutable.
func (s *Service) UpdateBook(ctx context.Context, id string, in model.BookInput) (model.Book, error) {
	book, err := s.repo.UpdateBook(ctx, id, func(b *model.Book) {
		apply(b, in)
	})
	if err != nil {
		return model.Book{}, err
	}
	s.log.Debug("book updated", zap.String("id", id))
	return book, nil
}

func (s *Service) DeleteBook(ctx context.Context, id string) (model.Book, error) {
	book, err := s.repo.DeleteBook(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	s.log.Debug("book deleted", zap.String("id", id))
	return book, nil
}

// apply writes each present field of in onto book. A present null falls
// back to the same default an absent key gets on create.
func apply(book *model.Book, in model.BookInput) {
	if in.Title.Set {
		book.Title = model.DefaultTitle
		if v, ok := in.Title.Get(); ok {
			book.Title = v
		}
	}
	if in.Author.Set {
		book.Author = optional(in.Author)
	}
	if in.Genre.Set {
		book.Genre = optional(in.Genre)
	}
	if in.Rating.Set {
		book.Rating = int(in.Rating.Value)
	}
	if in.Review.Set {
		book.Review = optional(in.Review)
	}
	if in.Moods.Set {
		book.Moods = []string{}
		if v, ok := in.Moods.Get(); ok && v != nil {
			book.Moods = v
		}
	}
	if in.Status.Set {
		book.Status = model.StatusToBeRead
		if v, ok := in.Status.Get(); ok {
			book.Status = v
		}
	}
	if in.StartDate.Set {
		book.StartDate = model.ParseDate(string(in.StartDate.Value))
	}
	if in.FinishDate.Set {
		book.FinishDate = model.ParseDate(string(in.FinishDate.Value))
	}
}

func optional(f model.Field[string]) *string {
	v, ok := f.Get()
	if !ok {
		return nil
	}
	return &v
}
