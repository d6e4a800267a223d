package testdb

import "os"

// urlEnvVars lists the variables consulted for a database URL, in order.
var urlEnvVars = []string{"DATABASE_URL", "GENFLOW_TEST_DB_URL", "GENFLOW_DATABASE_URL"}

// GetTestDatabaseURL returns the first non-empty database URL from the
// environment, or "" when none is set.
func GetTestDatabaseURL() string {
	for _, name := range urlEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkipDatabaseTest reports whether no database is configured.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// isCIEnvironment returns true if running in any type of CI environment.
func isCIEnvironment() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// requireDatabaseInCI is true when GENFLOW_REQUIRE_DB is set.
func requireDatabaseInCI() bool {
	return os.Getenv("GENFLOW_REQUIRE_DB") != ""
}
