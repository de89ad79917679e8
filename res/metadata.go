package res

const (
	AppName       = "localsonic"
	DisplayName   = "Localsonic"
	AppVersion    = "0.3.0"
	AppVersionTag = "v" + AppVersion
	Copyright     = "Copyright © 2024–2026 Drew Weymouth and contributors"
)
