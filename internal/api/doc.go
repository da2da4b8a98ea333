// Package api provides the Craftyard REST API.
//
//	@title						Craftyard API
//	@version					1.0
//	@description				Minecraft server fleet manager API
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package api
