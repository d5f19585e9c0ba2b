// Package chatlog defines the chat record model and the SillyTavern JSONL format.
//
// # Repository Layout
//
// Chat logs live in a repository with one folder per character:
//
//	<repo root>
//	     ├── Seraphina/
//	     │     ├── Seraphina - 2024-6-5 @14h 30m 12s 123ms.jsonl
//	     │     └── Branch #2.jsonl
//	     └── Aqua/
//	           └── first chat.jsonl
//
// Each file becomes one ChatRecord whose ID is "<folder>_<file name>".
//
// # File Format
//
// A SillyTavern chat file is JSON Lines. The first line is a header
// describing the chat, every following line is one message:
//
//	{"user_name":"You","character_name":"Seraphina","create_date":"2024-6-5 @14h 30m 12s 123ms"}
//	{"name":"Seraphina","is_user":false,"send_date":"June 5, 2024 2:30pm","mes":"Hello"}
//	{"name":"You","is_user":true,"send_date":"June 5, 2024 2:31pm","mes":"Hi!"}
//
// ParseChatContent accepts any mix of these lines and ignores blank lines.
package chatlog
