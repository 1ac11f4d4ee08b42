// Package chat connects the bot to a Twitch channel's IRC chat.
//
// Connector joins one channel with the bot's user token, converts every PRIVMSG into a
// Message and hands it to the registered handler. Message.SentMs comes from the
// tmi-sent-ts tag, the platform's send time, so offsets computed from it are not skewed
// by processing delay. Replies go back through Say.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes. App access tokens cannot be used for chat.
package chat
