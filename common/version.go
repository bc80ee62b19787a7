package common

// Version is the semantic version of this module, reported in the
// User-Agent header of every outbound request.
const Version = "1.0.0"

// SDKName is the identifier used as the first component of the User-Agent
// header value.
const SDKName = "ibmcloud-go-sdk-core"
