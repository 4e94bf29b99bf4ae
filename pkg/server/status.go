package server

import (
	"net/http"

	"github.com/heatpilot/heatpilot/pkg/devstate"
	"github.com/heatpilot/heatpilot/pkg/types"
)

// statusResult is the snapshot returned by GET /api/status.
type statusResult struct {
	LastCycle        *cycleResult           `json:"lastCycle,omitempty"`
	Savings          types.SavingsMetrics   `json:"savings"`
	SavingsHistory   []types.SavingsEntry   `json:"savingsHistory"`
	CarnotEfficiency float64                `json:"carnotEfficiency"`
	CalibrationN     int                    `json:"calibrationPoints"`
	Zone1Setpoint    *devstate.TargetRecord `json:"zone1Setpoint,omitempty"`
	Zone2Setpoint    *devstate.TargetRecord `json:"zone2Setpoint,omitempty"`
	TankSetpoint     *devstate.TargetRecord `json:"tankSetpoint,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.cycleMu.Lock()
	last := s.lastCycle
	s.cycleMu.Unlock()

	zone1, zone2, tank := s.tracker.LastSetpoints()
	writeJSON(w, statusResult{
		LastCycle:        last,
		Savings:          s.accounting.Metrics(),
		SavingsHistory:   s.accounting.History(),
		CarnotEfficiency: s.predictor.CarnotEfficiency(),
		CalibrationN:     s.predictor.PointCount(),
		Zone1Setpoint:    zone1,
		Zone2Setpoint:    zone2,
		TankSetpoint:     tank,
	})
}
