package postgres

import (
	"context"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
)

func (s *Store) GetDashboardStats(ctx context.Context) (models.DashboardStats, error) {
	stats := models.DashboardStats{
		TicketBuckets:      map[string]int{},
		AppointmentBuckets: map[string]int{},
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(1) FROM repair_tickets GROUP BY status`)
	if err != nil {
		return models.DashboardStats{}, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return models.DashboardStats{}, err
		}
		stats.TicketBuckets[status] = count
		stats.TicketsTotal += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.DashboardStats{}, err
	}

	rows, err = s.pool.Query(ctx, `SELECT status, COUNT(1) FROM appointments GROUP BY status`)
	if err != nil {
		return models.DashboardStats{}, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return models.DashboardStats{}, err
		}
		stats.AppointmentBuckets[status] = count
		stats.AppointmentsTotal += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.DashboardStats{}, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(1) FROM customers), (SELECT COUNT(1) FROM devices WHERE active = TRUE)
	`)
	if err := row.Scan(&stats.CustomersTotal, &stats.DevicesTotal); err != nil {
		return models.DashboardStats{}, err
	}
	return stats, nil
}
