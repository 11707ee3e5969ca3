package bot

import (
	"math"
	"time"
)

// DecayedConfidence возвращает экспоненциально затухшую уверенность сигнала:
// confidence * 0.5^(age/halfLife). Кривая и период полураспада настраиваемые,
// функция монотонно убывает по возрасту
func DecayedConfidence(confidence float64, age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return confidence
	}
	return confidence * math.Pow(0.5, age.Hours()/halfLife.Hours())
}
