// Package env resolves variables inside test documents.
//
// It provides functionality for:
//   - Loading .env files
//   - Variable interpolation using {{variable}} syntax
//   - Built-in function evaluation using {{$function(args)}} syntax
package env
