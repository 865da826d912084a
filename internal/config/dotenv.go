package config

import "github.com/joho/godotenv"

// LoadDotEnv reads a .env file into the process environment.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}
