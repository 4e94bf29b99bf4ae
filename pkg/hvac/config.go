package hvac

// Configured sets up the vendor cloud client. The returned *Cloud
// satisfies Client; consumers take the interface.
func Configured() *Cloud {
	return configuredCloud()
}
