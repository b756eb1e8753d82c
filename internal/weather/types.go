package weather

// Location describes the resolved place a report covers
type Location struct {
	Name      string `json:"name"`
	Region    string `json:"region"`
	Country   string `json:"country"`
	Localtime string `json:"localtime"`
}

// Current holds present conditions
type Current struct {
	Temperature float64            `json:"temperature"`
	Condition   string             `json:"condition"`
	FeelsLike   float64            `json:"feels_like"`
	Humidity    int                `json:"humidity"`
	WindKPH     float64            `json:"wind_kph"`
	WindDir     string             `json:"wind_dir"`
	PressureMB  float64            `json:"pressure_mb"`
	PrecipMM    float64            `json:"precip_mm"`
	UV          float64            `json:"uv"`
	AirQuality  map[string]float64 `json:"air_quality"`
}

// ForecastDay is one day of forecast
type ForecastDay struct {
	Date         string  `json:"date"`
	MaxTemp      float64 `json:"max_temp"`
	MinTemp      float64 `json:"min_temp"`
	Condition    string  `json:"condition"`
	ChanceOfRain int     `json:"chance_of_rain"`
	Sunrise      string  `json:"sunrise"`
	Sunset       string  `json:"sunset"`
}

// Report is the assembled forecast response for a city
type Report struct {
	Location Location      `json:"location"`
	Current  Current       `json:"current"`
	Forecast []ForecastDay `json:"forecast"`
}

// AirQuality holds pollutant measurements for a city
type AirQuality struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	AQI     int     `json:"aqi"`
	PM25    float64 `json:"pm2_5"`
	PM10    float64 `json:"pm10"`
	NO2     float64 `json:"no2"`
	O3      float64 `json:"o3"`
	CO      float64 `json:"co"`
}

// SpaceWeather holds solar activity and aurora forecast data
type SpaceWeather struct {
	KPIndex        float64 `json:"kp_index"`
	AuroraVisible  bool    `json:"aurora_visible"`
	SolarRadiation string  `json:"solar_radiation"`
	Forecast       string  `json:"forecast"`
}

// upstream WeatherAPI.com response shapes

type apiLocation struct {
	Name      string `json:"name"`
	Region    string `json:"region"`
	Country   string `json:"country"`
	Localtime string `json:"localtime"`
}

type apiCondition struct {
	Text string `json:"text"`
}

type apiCurrent struct {
	TempC      float64            `json:"temp_c"`
	Condition  apiCondition       `json:"condition"`
	FeelsLikeC float64            `json:"feelslike_c"`
	Humidity   int                `json:"humidity"`
	WindKPH    float64            `json:"wind_kph"`
	WindDir    string             `json:"wind_dir"`
	PressureMB float64            `json:"pressure_mb"`
	PrecipMM   float64            `json:"precip_mm"`
	UV         float64            `json:"uv"`
	AirQuality map[string]float64 `json:"air_quality"`
}

type apiForecastDay struct {
	Date string `json:"date"`
	Day  struct {
		MaxTempC          float64      `json:"maxtemp_c"`
		MinTempC          float64      `json:"mintemp_c"`
		Condition         apiCondition `json:"condition"`
		DailyChanceOfRain int          `json:"daily_chance_of_rain"`
	} `json:"day"`
	Astro struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"astro"`
}

type apiForecastResponse struct {
	Location apiLocation `json:"location"`
	Current  apiCurrent  `json:"current"`
	Forecast struct {
		ForecastDay []apiForecastDay `json:"forecastday"`
	} `json:"forecast"`
}

type apiCurrentResponse struct {
	Location apiLocation `json:"location"`
	Current  apiCurrent  `json:"current"`
}
