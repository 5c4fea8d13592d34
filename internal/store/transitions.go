package store

import "github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"

var ticketTransitions = map[string][]string{
	models.TicketStatusNew:        {models.TicketStatusInProgress, models.TicketStatusOnHold, models.TicketStatusCancelled},
	models.TicketStatusInProgress: {models.TicketStatusOnHold, models.TicketStatusCompleted, models.TicketStatusCancelled},
	models.TicketStatusOnHold:     {models.TicketStatusNew, models.TicketStatusInProgress, models.TicketStatusCancelled},
	models.TicketStatusCompleted:  {models.TicketStatusInProgress},
	models.TicketStatusCancelled:  {},
}

var appointmentTransitions = map[string][]string{
	models.AppointmentStatusScheduled: {models.AppointmentStatusConfirmed, models.AppointmentStatusArrived, models.AppointmentStatusNoShow, models.AppointmentStatusCancelled},
	models.AppointmentStatusConfirmed: {models.AppointmentStatusArrived, models.AppointmentStatusNoShow, models.AppointmentStatusCancelled},
	models.AppointmentStatusArrived:   {models.AppointmentStatusConverted, models.AppointmentStatusCancelled},
	models.AppointmentStatusNoShow:    {models.AppointmentStatusScheduled},
	models.AppointmentStatusConverted: {},
	models.AppointmentStatusCancelled: {},
}

func ValidTicketTransition(from, to string) bool {
	return validTransition(ticketTransitions, from, to)
}

func ValidAppointmentTransition(from, to string) bool {
	return validTransition(appointmentTransitions, from, to)
}

func validTransition(table map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := table[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}
