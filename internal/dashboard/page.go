package dashboard

// viewerPage is the minimal chat list viewer with the refresh toolbar.
const viewerPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>chatsync</title>
    <style>
        body { font-family: sans-serif; margin: 2em; }
        #toolbar { margin-bottom: 1em; }
        #alert { color: #b00020; margin: 0.5em 0; }
        li { margin: 0.2em 0; }
        .muted { color: #777; }
        #chats li { cursor: pointer; }
        #chats li.selected { font-weight: bold; }
        #messages { margin-top: 1em; border-top: 1px solid #ddd; }
        .message { margin: 0.6em 0; white-space: pre-wrap; }
        .speaker { font-weight: bold; }
        .user .speaker { color: #0b7a4b; }
        .system { color: #777; }
    </style>
</head>
<body>
    <div id="toolbar">
        <button id="refresh">Refresh from GitHub</button>
        <span id="status" class="muted"></span>
    </div>
    <div id="alert"></div>
    <ul id="chats"></ul>
    <div id="messages"></div>
    <script>
    const list = document.getElementById("chats");
    const status = document.getElementById("status");
    const alertBox = document.getElementById("alert");
    const messages = document.getElementById("messages");
    let openID = null;

    function render(chats) {
        list.innerHTML = "";
        for (const c of chats) {
            const li = document.createElement("li");
            li.textContent = c.name + " (" + c.messageCount + " messages)";
            const when = document.createElement("span");
            when.className = "muted";
            when.textContent = " " + new Date(c.timestamp).toLocaleString();
            li.appendChild(when);
            li.dataset.id = c.id;
            if (c.id === openID) li.className = "selected";
            li.onclick = () => openChat(c.id);
            list.appendChild(li);
        }
        status.textContent = chats.length + " chats";
    }

    function openChat(id) {
        openID = id;
        for (const li of list.children) li.className = "";
        fetch("/api/chats/" + encodeURIComponent(id))
            .then(r => r.ok ? r.json() : Promise.reject(r.status))
            .then(renderChat)
            .catch(code => { messages.textContent = "Failed to open chat (" + code + ")"; });
    }

    function renderChat(chat) {
        messages.innerHTML = "";
        const title = document.createElement("h3");
        title.textContent = chat.name;
        messages.appendChild(title);
        for (const m of chat.messages || []) {
            const div = document.createElement("div");
            div.className = "message" + (m.is_user ? " user" : "") + (m.is_system ? " system" : "");
            const speaker = document.createElement("span");
            speaker.className = "speaker";
            speaker.textContent = m.name + ": ";
            div.appendChild(speaker);
            div.appendChild(document.createTextNode(m.mes));
            messages.appendChild(div);
        }
        for (const li of list.children) {
            if (li.dataset.id === chat.id) li.className = "selected";
        }
    }

    function load() {
        fetch("/api/chats").then(r => r.json()).then(d => render(d.chats || []));
    }

    document.getElementById("refresh").onclick = () => {
        status.textContent = "refreshing...";
        fetch("/api/refresh", {method: "POST"});
    };

    const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.type === "chat_list") {
            alertBox.textContent = "";
            render(msg.data.chats || []);
        } else if (msg.type === "chat_update" && msg.data.chat_id === openID) {
            openChat(openID);
        } else if (msg.type === "alert") {
            alertBox.textContent = msg.data.message;
            window.alert(msg.data.message);
        }
    };

    load();
    </script>
</body>
</html>
`
