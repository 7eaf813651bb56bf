package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/catalog"
	"github.com/wricardo/quizrooms/game/results"
	"github.com/wricardo/quizrooms/game/room"
)

// RoomService is the read side of the room router
type RoomService interface {
	ListRooms(ctx context.Context) ([]room.Snapshot, error)
	GetRoom(ctx context.Context, code string) (room.Snapshot, error)
}

// Catalog lists the available game types
type Catalog interface {
	ListSets() []catalog.SetInfo
}

// Options wires the server's collaborators. Only Rooms is required.
type Options struct {
	Rooms   RoomService
	Catalog Catalog
	Results results.Recorder

	// WebSocket serves /ws when set
	WebSocket http.Handler
	// Metrics serves /metrics when set
	Metrics http.Handler

	Logger *zap.Logger
}

// Server represents the REST API server
type Server struct {
	rooms   RoomService
	catalog Catalog
	results results.Recorder
	logger  *zap.Logger
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		rooms:   opts.Rooms,
		catalog: opts.Catalog,
		results: opts.Results,
		logger:  logger,
		router:  mux.NewRouter(),
	}

	s.setupRoutes(opts.WebSocket, opts.Metrics)
	return s
}

func (s *Server) setupRoutes(ws, metrics http.Handler) {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Rooms
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{code}", s.handleGetRoom).Methods("GET")

	// Content and history
	api.HandleFunc("/game-types", s.handleListGameTypes).Methods("GET")
	api.HandleFunc("/results", s.handleListResults).Methods("GET")

	if ws != nil {
		s.router.Handle("/ws", ws)
	}
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.ListRooms(r.Context())
	if err != nil {
		s.logger.Error("failed to list rooms", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created" (default), "players"
	order := query.Get("order")    // "asc", "desc" (default)
	limitStr := query.Get("limit") // number of rooms to return

	if sortBy != "players" {
		sortBy = "created"
	}
	if order != "asc" {
		order = "desc"
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		if order == "asc" {
			a, b = b, a
		}
		if sortBy == "players" && len(a.Players) != len(b.Players) {
			return len(a.Players) > len(b.Players)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		// codes break ties in a stable direction
		return rooms[i].Code < rooms[j].Code
	})

	total := len(rooms)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(rooms) {
			rooms = rooms[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"total": total,
		"rooms": rooms,
		"sort":  sortBy,
		"order": order,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	snap, err := s.rooms.GetRoom(r.Context(), code)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListGameTypes(w http.ResponseWriter, r *http.Request) {
	sets := []catalog.SetInfo{}
	if s.catalog != nil {
		sets = s.catalog.ListSets()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(sets),
		"gameTypes": sets,
	})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		respondError(w, http.StatusNotFound, "results are not recorded")
		return
	}

	list, err := s.results.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list results", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	query := r.URL.Query()
	total := len(list)
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(list) {
			list = list[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(list),
		"total":   total,
		"results": list,
	})
}
