package cli

// Export internal functions for testing.

// RunDaemon exports runDaemon for testing.
var RunDaemon = runDaemon

// RunList exports runList for testing.
var RunList = runList

// RunStar exports runStar for testing.
var RunStar = runStar

// RunNote exports runNote for testing.
var RunNote = runNote

// RunDelete exports runDelete for testing.
var RunDelete = runDelete

// RunTranscribe exports runTranscribe for testing.
var RunTranscribe = runTranscribe

// RunProfiles exports runProfiles for testing.
var RunProfiles = runProfiles

// RunListDevices exports runListDevices for testing.
var RunListDevices = runListDevices

// RunConfigSet exports runConfigSet for testing.
var RunConfigSet = runConfigSet

// RunConfigGet exports runConfigGet for testing.
var RunConfigGet = runConfigGet

// RunConfigList exports runConfigList for testing.
var RunConfigList = runConfigList

// ParseID exports parseID for testing.
var ParseID = parseID

// IsValidConfigKey exports isValidConfigKey for testing.
var IsValidConfigKey = isValidConfigKey

// CallLabel exports callLabel for testing.
var CallLabel = callLabel
