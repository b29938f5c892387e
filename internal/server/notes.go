package server

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/vault"
	"github.com/labstack/echo/v4"
)

type envelopeRequest struct {
	Ciphertext string `json:"ciphertext" validate:"required"`
	IV         string `json:"iv" validate:"required"`
	Salt       string `json:"salt" validate:"required"`
}

func (r envelopeRequest) envelope() vault.Envelope {
	return vault.Envelope{Ciphertext: r.Ciphertext, IV: r.IV, Salt: r.Salt}
}

type createNoteRequest struct {
	Title      string          `json:"title" validate:"max=200"`
	Content    envelopeRequest `json:"content" validate:"required"`
	IsFavorite bool            `json:"isFavorite"`
	Tags       []string        `json:"tags" validate:"max=20,dive,max=50"`
}

type updateNoteRequest struct {
	Title      *string          `json:"title" validate:"omitempty,max=200"`
	Content    *envelopeRequest `json:"content" validate:"omitempty"`
	IsFavorite *bool            `json:"isFavorite"`
	Tags       *[]string        `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

func (r updateNoteRequest) input() notes.UpdateInput {
	in := notes.UpdateInput{Title: r.Title, IsFavorite: r.IsFavorite}
	if r.Content != nil {
		env := r.Content.envelope()
		in.Content = &env
	}
	if r.Tags != nil {
		in.Tags = *r.Tags
		in.SetTags = true
	}
	return in
}

func (s *Server) bindNotes(g *echo.Group) {
	g.GET("", s.listNotes)
	g.POST("", s.createNote)
	g.GET("/:id", s.getNote)
	g.PATCH("/:id", s.updateNote)
	g.DELETE("/:id", s.trashNote)
	g.POST("/:id/restore", s.restoreNote)
	g.DELETE("/:id/hard", s.purgeNote)
}

func (s *Server) listNotes(c echo.Context) error {
	var f notes.Filter
	err := echo.QueryParamsBinder(c).
		Bool("favorite", &f.Favorite).
		Bool("deleted", &f.Deleted).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "favorite and deleted must be true or false")
	}

	list, err := s.notes.List(c.Request().Context(), userID(c), f)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*notes.Note{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) getNote(c echo.Context) error {
	n, err := s.notes.Get(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) createNote(c echo.Context) error {
	var req createNoteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	n, err := s.notes.Create(c.Request().Context(), userID(c), notes.CreateInput{
		Title:      req.Title,
		Content:    req.Content.envelope(),
		IsFavorite: req.IsFavorite,
		Tags:       req.Tags,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, n)
}

func (s *Server) updateNote(c echo.Context) error {
	var req updateNoteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	n, err := s.notes.Update(c.Request().Context(), userID(c), c.Param("id"), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) trashNote(c echo.Context) error {
	if _, err := s.notes.Trash(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Note moved to trash successfully"})
}

func (s *Server) restoreNote(c echo.Context) error {
	n, err := s.notes.Restore(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return trashError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Note restored successfully", "note": n})
}

func (s *Server) purgeNote(c echo.Context) error {
	if err := s.notes.Purge(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return trashError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Note permanently deleted"})
}

func trashError(err error) error {
	if errors.Is(err, notes.ErrNotFound) {
		return withStatus(http.StatusNotFound, "Note not found in trash", err)
	}
	return err
}
