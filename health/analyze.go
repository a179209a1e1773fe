// Package health derives a 0-100 health score and categorized issue
// lists from backend telemetry, and polls the telemetry endpoints.
package health

import (
	"fmt"

	labdojo "github.com/labdojo/labdojo-go"
)

// HitRate returns the cache hit rate as a percentage, or 0 when no
// entries are available.
func HitRate(stats *labdojo.CacheStats) float64 {
	if stats == nil || stats.TotalAvailableEntries <= 0 {
		return 0
	}
	return float64(stats.TotalEntries) / float64(stats.TotalAvailableEntries) * 100
}

// Analyze scores one telemetry snapshot. The deductions are ordered
// policy values that downstream consumers depend on, including the
// hit-rate recommendation firing on top of the low-hit-rate
// deductions; do not "fix" the overlap.
func Analyze(snap labdojo.HealthSnapshot) labdojo.HealthMetrics {
	score := 100
	var critical, warnings, recommendations []string

	if snap.Health != nil {
		switch snap.Health.Status {
		case labdojo.StatusUnhealthy:
			score -= 40
			critical = append(critical, "System is unhealthy")
		case labdojo.StatusDegraded:
			score -= 20
			warnings = append(warnings, "System performance is degraded")
		}
	} else {
		score -= 30
		critical = append(critical, "Unable to determine system health")
	}

	if snap.CacheStats != nil {
		stats := snap.CacheStats
		hitRate := HitRate(stats)

		if stats.TotalEntries > 0 {
			if hitRate < 50 {
				score -= 25
				critical = append(critical, fmt.Sprintf("Lab cache hit rate is critically low: %.1f%%", hitRate))
			} else if hitRate < 80 {
				score -= 10
				warnings = append(warnings, fmt.Sprintf("Lab cache hit rate is below optimal: %.1f%%", hitRate))
			}
			if hitRate < 90 {
				recommendations = append(recommendations, "Consider clearing cache or investigating cache performance")
			}
		} else if stats.TotalAvailableEntries == 0 {
			warnings = append(warnings, "Lab cache appears to be empty")
			recommendations = append(recommendations, "Cache may need time to warm up with lab content")
		}
	} else {
		score -= 15
		warnings = append(warnings, "Cache statistics unavailable")
	}

	var unacknowledged, criticalAlerts, warningAlerts int
	for _, alert := range snap.Alerts {
		if alert.Acknowledged {
			continue
		}
		unacknowledged++
		switch alert.Type {
		case labdojo.AlertError:
			criticalAlerts++
		case labdojo.AlertWarning:
			warningAlerts++
		}
	}
	if criticalAlerts > 0 {
		score -= criticalAlerts * 10
		critical = append(critical, fmt.Sprintf("%d critical alert(s) require attention", criticalAlerts))
	}
	if warningAlerts > 0 {
		score -= warningAlerts * 5
		warnings = append(warnings, fmt.Sprintf("%d warning alert(s) pending", warningAlerts))
	}
	if unacknowledged > 5 {
		recommendations = append(recommendations, "Review and acknowledge pending alerts")
	}

	if snap.GlobalLogout != nil && snap.GlobalLogout.Active {
		score -= 15
		warnings = append(warnings, "Global logout is active - all user sessions are invalidated")
		recommendations = append(recommendations, "Consider clearing global logout if issue has been resolved")
	}

	if score < 0 {
		score = 0
	}

	return labdojo.HealthMetrics{
		IsHealthy:       score >= 80 && len(critical) == 0,
		HealthScore:     score,
		CriticalIssues:  critical,
		Warnings:        warnings,
		Recommendations: recommendations,
	}
}

// CacheStatus buckets the cache hit rate into the backend's
// three-valued health vocabulary.
func CacheStatus(stats *labdojo.CacheStats) string {
	if stats == nil {
		return labdojo.StatusUnhealthy
	}
	rate := HitRate(stats)
	switch {
	case rate >= 80:
		return labdojo.StatusHealthy
	case rate >= 50:
		return labdojo.StatusDegraded
	default:
		return labdojo.StatusUnhealthy
	}
}
