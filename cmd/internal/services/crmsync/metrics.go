package crmsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "student_import_crm_notifications_total",
	Help: "CRM notifications by result: sent, failed or dropped.",
}, []string{"result"})
