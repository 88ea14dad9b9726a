package handler

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/model"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BookService interface {
	ListBooks(ctx context.Context) ([]model.Book, error)
	CreateBook(ctx context.Context, in model.BookInput) (model.Book, error)
	UpdateBook(ctx context.Context, id string, in model.BookInput) (model.Book, error)
	DeleteBook(ctx context.Context, id string) (model.Book, error)
}

var _ BookService = (*service.Service)(nil)
