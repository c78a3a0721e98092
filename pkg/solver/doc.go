// Package solver implements the challenge resolvers.
//
// Two resolvers are provided. ManualSolver prompts the operator to solve
// the challenge in a browser and paste the resulting session cookies back
// into the terminal. ServiceSolver submits the challenge to an external
// solving service over HTTP and waits for the credentials.
//
// The solving-service API key is stored in the system keychain when one is
// available, with an encrypted file fallback for headless machines.
package solver
