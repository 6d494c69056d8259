/*
 * Copyright 2025 Home Relay Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sensor

import "math"

// Heat index applies only to warm, humid air.
const (
	heatIndexMinTempF    = 80.0
	heatIndexMinHumidity = 40.0
)

// Magnus formula constants for dew point over water.
const (
	magnusA = 17.62
	magnusB = 243.12
)

// dewPointBlendWeight pulls the feels-like value toward the dew point for
// cool air, where the heat index formula does not apply.
const dewPointBlendWeight = 0.1

// CelsiusToFahrenheit converts a temperature in Celsius to Fahrenheit.
func CelsiusToFahrenheit(tempC float64) float64 {
	return tempC*9/5 + 32
}

// FeelsLike computes the apparent temperature for a given air temperature
// (Celsius) and relative humidity (percent). For warm humid air it uses the
// Rothfusz heat index regression (in Fahrenheit, converted back); for cooler
// air it blends toward the Magnus dew point. Input and output are Celsius.
func FeelsLike(tempC, humidity float64) float64 {
	tempF := CelsiusToFahrenheit(tempC)

	if tempF >= heatIndexMinTempF && humidity >= heatIndexMinHumidity {
		hi := -42.379 +
			2.04901523*tempF +
			10.14333127*humidity -
			0.22475541*tempF*humidity -
			0.00683783*tempF*tempF -
			0.05481717*humidity*humidity +
			0.00122874*tempF*tempF*humidity +
			0.00085282*tempF*humidity*humidity -
			0.00000199*tempF*tempF*humidity*humidity

		return (hi - 32) * 5 / 9
	}

	if humidity <= 0 {
		return tempC
	}

	gamma := math.Log(humidity/100) + (magnusA*tempC)/(magnusB+tempC)
	dewPoint := (magnusB * gamma) / (magnusA - gamma)

	return tempC + (dewPoint-tempC)*dewPointBlendWeight
}
