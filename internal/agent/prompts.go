package agent

// intentPrompt classifies a message as a weather question or general chat.
// The model must answer with exactly one of the two tokens.
const intentPrompt = `You are a comprehensive weather assistant. Your task is to:
1. First determine if the user is asking about:
   - Weather information (respond with exactly: "WEATHER_QUERY")
   - General chat (respond with exactly: "GENERAL_CHAT")
2. Only respond with one of these two options, nothing else.
`

const intentWeather = "WEATHER_QUERY"

// cityNormalizationPrompt expands abbreviations and typos into a canonical
// "City, Country" form so every phrasing of the same place shares cache keys.
const cityNormalizationPrompt = `You are a helpful assistant that normalizes city names to their full form including country/region when needed to avoid ambiguity.
Examples:
Input: 'NYC' -> Output: 'New York, United States'
Input: 'vancooooover' -> Output: 'Vancouver, Canada'
Input: 'london' -> Output: 'London, United Kingdom'
Input: 'paris' -> Output: 'Paris, France'
Input: 'yvr' -> Output: 'Vancouver, Canada'

Return ONLY the normalized city name for the location mentioned in the user's weather query, nothing else. If no country/region is specified,
assume the most well-known city (e.g., Vancouver = Vancouver, Canada).

Do not include any extra text, just return the normalized city name with country.`

// weatherAnalysisPrompt asks the model to summarize fetched weather data in
// the context of the user's question.
const weatherAnalysisPrompt = `Given the user request about weather:
User: %s

Respond by analyzing the following weather data and provide a summary and trends:
Weather data: %s

Focus on the most important parts.
`

const chatSystemPrompt = "You are a friendly weather assistant. Provide helpful and concise responses."
