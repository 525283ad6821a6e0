package handlers

import (
	"context"
	"deadkm-service/internal/api/dto"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/services"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Engine is the service surface the HTTP layer drives.
type Engine interface {
	GenerateMatrix(ctx context.Context, taskID string, drivers, pickups []domain.VehicleRecord) (*services.MatrixOutcome, error)
	Optimize(ctx context.Context, req services.OptimizeRequest) (*services.OptimizeOutcome, error)
	Calculate(ctx context.Context, taskID string, records []domain.VehicleRecord) (*services.CalculateOutcome, error)
	Progress(ctx context.Context, taskID string) (domain.Progress, error)
}

type DeadKMHandler struct {
	Engine Engine
	// Defaults that request constraints are overlaid on.
	Constraints domain.Constraints
}

// failureStatus maps an engine error to the response code. Engine failures
// are reported in the envelope with 200 so clients handle a single shape.
func failureStatus(err error) int {
	if errors.Is(err, domain.ErrTaskExists) {
		return http.StatusConflict
	}
	return http.StatusOK
}

func (h *DeadKMHandler) GenerateMatrix(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateMatrixRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.Engine.GenerateMatrix(r.Context(), req.TaskID,
		dto.VehiclesToDomain(req.DriverData), dto.VehiclesToDomain(req.PickupData))
	if err != nil {
		log.Printf("generate matrix failed task_id=%s err=%v", out.TaskID, err)
		writeJSON(w, r, failureStatus(err), dto.GenerateMatrixResponse{TaskID: out.TaskID, Error: err.Error()})
		return
	}

	writeJSON(w, r, http.StatusOK, dto.GenerateMatrixResponse{
		Success: true,
		TaskID:  out.TaskID,
		Matrix:  dto.FromDomainMatrix(out.Matrix),
		Summary: &dto.MatrixSummary{
			TotalCells:       out.Stats.Cells,
			UniqueLookups:    out.Stats.Lookups,
			UnreachableCells: out.Stats.Failed,
		},
	})
}

func (h *DeadKMHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	matrix, err := req.DistanceMatrix.ToDomain()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var constraints *domain.Constraints
	if req.Constraints != nil {
		c := req.Constraints.Apply(h.Constraints)
		constraints = &c
	}

	out, err := h.Engine.Optimize(r.Context(), services.OptimizeRequest{
		TaskID:      req.TaskID,
		Drivers:     dto.VehiclesToDomain(req.DriverData),
		Pickups:     dto.VehiclesToDomain(req.PickupData),
		Matrix:      matrix,
		Constraints: constraints,
	})
	if err != nil {
		log.Printf("optimize failed task_id=%s err=%v", out.TaskID, err)
		writeJSON(w, r, failureStatus(err), dto.OptimizeResponse{TaskID: out.TaskID, Error: err.Error()})
		return
	}

	writeJSON(w, r, http.StatusOK, dto.FromOptimizeOutcome(out))
}

func (h *DeadKMHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req dto.CalculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.Engine.Calculate(r.Context(), req.TaskID, dto.VehiclesToDomain(req.Data))
	if err != nil {
		log.Printf("calculate failed task_id=%s err=%v", out.TaskID, err)
		writeJSON(w, r, failureStatus(err), dto.CalculateResponse{TaskID: out.TaskID, Error: err.Error()})
		return
	}

	writeJSON(w, r, http.StatusOK, dto.FromCalculateOutcome(out))
}

func (h *DeadKMHandler) Progress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	p, err := h.Engine.Progress(r.Context(), taskID)
	if domain.IsTaskNotFound(err) {
		writeJSON(w, r, http.StatusNotFound, dto.ProgressResponse{Found: false, TaskID: taskID, Error: err.Error()})
		return
	}
	if err != nil {
		log.Printf("progress lookup failed task_id=%s err=%v", taskID, err)
		writeJSON(w, r, http.StatusInternalServerError, dto.ProgressResponse{Found: false, TaskID: taskID, Error: "progress store unavailable"})
		return
	}

	writeJSON(w, r, http.StatusOK, dto.FromDomainProgress(p))
}
