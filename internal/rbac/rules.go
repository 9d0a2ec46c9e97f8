package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
		"certificate:view-own",
	},
	"teacher": {
		"quiz:create",
		"quiz:view",
		"attempt:view-all",
		"certificate:view-own",
	},
	"admin": {
		"*", // everything
	},
}
