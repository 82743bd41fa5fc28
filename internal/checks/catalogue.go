package checks

// Default returns the full catalogue in run order.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(preliminaryChecks()...)
	r.MustRegister(piWebAPIChecks()...)
	r.MustRegister(pidaChecks()...)
	r.MustRegister(analysisChecks()...)
	r.MustRegister(manualLoggerChecks()...)
	return r
}

func piWebAPIChecks() []*Check {
	web := RequiresWebAPI()
	return []*Check{
		{
			ID:          "configuration",
			Suite:       SuitePIWebAPI,
			Description: "System configuration is readable and enables the client's authentication method",
			Requires:    []Condition{web},
			Run:         checkConfiguration,
		},
		{
			ID:          "authentication",
			Suite:       SuitePIWebAPI,
			Description: "Requests without credentials are rejected with 401",
			Requires:    []Condition{web, RequiresAuthentication()},
			Run:         checkAuthentication,
		},
		{
			ID:          "af-read-write",
			Suite:       SuitePIWebAPI,
			Description: "Elements, attributes and event frames can be created, renamed, read and deleted",
			Requires:    []Condition{web, RequiresSetting("AFServer", "AFDatabase")},
			Run:         checkAFReadWrite,
		},
		{
			ID:          "da-read-write",
			Suite:       SuitePIWebAPI,
			Description: "PI points can be created, renamed, read and deleted",
			Requires:    []Condition{web, RequiresSetting("PIDataArchive")},
			Run:         checkDAReadWrite,
		},
		{
			ID:          "stream-updates",
			Suite:       SuitePIWebAPI,
			Description: "Stream updates report new events for the test point",
			Requires:    []Condition{web, RequiresSetting("PIDataArchive", "PITestPoint")},
			Run:         checkStreamUpdates,
		},
		{
			ID:          "channels",
			Suite:       SuitePIWebAPI,
			Description: "Stream channels deliver new values for the test point",
			Requires:    []Condition{web, RequiresSetting("PIDataArchive", "PITestPoint")},
			Run:         checkChannels,
		},
		{
			ID:          "omf",
			Suite:       SuitePIWebAPI,
			Description: "OMF type, container and data messages create and delete the template, points and values",
			Requires:    []Condition{web, RequiresOMF(), RequiresWrites()},
			Run:         checkOMF,
		},
		{
			ID:          "indexed-search",
			Suite:       SuitePIWebAPI,
			Description: "Indexed search finds the test database",
			Requires:    []Condition{web, RequiresSearch(), RequiresSetting("AFDatabase")},
			Run:         checkIndexedSearch,
		},
		{
			ID:          "batch",
			Suite:       SuitePIWebAPI,
			Description: "A dependent batch request reads and writes a PI point",
			Requires:    []Condition{web, RequiresWrites(), RequiresSetting("PIDataArchive")},
			Run:         checkBatch,
		},
		{
			ID:          "attributes",
			Suite:       SuitePIWebAPI,
			Description: "An attribute value can be written and read back",
			Requires:    []Condition{web, RequiresWrites(), RequiresSetting("AFServer", "AFDatabase")},
			Run:         checkAttributes,
		},
		{
			ID:          "sandbox",
			Suite:       SuitePIWebAPI,
			Description: "A database, category, template and element can be built and removed",
			Requires:    []Condition{web, RequiresWrites(), RequiresSetting("AFServer")},
			Run:         checkSandbox,
		},
	}
}

func pidaChecks() []*Check {
	return []*Check{
		{
			ID:          "snapshot-updates",
			Suite:       SuitePIDA,
			Description: "The test point snapshot advances",
			Requires:    []Condition{RequiresWebAPI(), RequiresSetting("PIDataArchive", "PITestPoint")},
			Run:         checkSnapshotUpdates,
		},
		{
			ID:          "recorded-values",
			Suite:       SuitePIDA,
			Description: "Recorded values written to a new point can be read back",
			Requires:    []Condition{RequiresWebAPI(), RequiresWrites(), RequiresSetting("PIDataArchive")},
			Run:         checkRecordedValues,
		},
	}
}
